package domain

import "unicode"

// CharacterClasses reports which of the four password character classes are
// present. Symbols and punctuation both count as special.
func CharacterClasses(password string) (hasUpper, hasLower, hasDigit, hasSpecial bool) {
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	return
}

// ClassCount counts distinct character classes present in the password.
func ClassCount(password string) int {
	upper, lower, digit, special := CharacterClasses(password)
	n := 0
	for _, ok := range []bool{upper, lower, digit, special} {
		if ok {
			n++
		}
	}
	return n
}

// HasSequentialRun reports whether the password contains minRun or more
// consecutively ascending characters, case-insensitive ("abc", "123").
func HasSequentialRun(password string, minRun int) bool {
	if minRun < 2 || len(password) < minRun {
		return false
	}
	runes := []rune(password)
	for i := range runes {
		runes[i] = unicode.ToLower(runes[i])
	}
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1]+1 {
			run++
			if run >= minRun {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// HasRepeatedRun reports whether any character repeats maxRun or more times
// in a row ("aaa", "111").
func HasRepeatedRun(password string, maxRun int) bool {
	if maxRun < 2 || len(password) < maxRun {
		return false
	}
	runes := []rune(password)
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= maxRun {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}
