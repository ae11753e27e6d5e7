package application

// commonPasswords holds frequently breached passwords rejected outright.
// Matching is case-insensitive.
var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "passw0rd": {},
	"123456": {}, "1234567": {}, "12345678": {}, "123456789": {}, "1234567890": {},
	"qwerty": {}, "qwerty123": {}, "qwertyuiop": {}, "asdfgh": {}, "zxcvbn": {},
	"abc123": {}, "abcd1234": {}, "111111": {}, "000000": {}, "654321": {},
	"letmein": {}, "welcome": {}, "welcome1": {}, "admin": {}, "admin123": {},
	"root": {}, "toor": {}, "login": {}, "master": {}, "monkey": {},
	"dragon": {}, "sunshine": {}, "princess": {}, "football": {}, "baseball": {},
	"superman": {}, "batman": {}, "trustno1": {}, "iloveyou": {}, "whatever": {},
	"secret": {}, "shadow": {}, "hello": {}, "freedom": {}, "starwars": {},
	"michael": {}, "jordan": {}, "harley": {}, "hunter": {}, "ranger": {},
	"buster": {}, "soccer": {}, "hockey": {}, "killer": {}, "george": {},
	"charlie": {}, "andrew": {}, "thomas": {}, "jessica": {}, "pepper": {},
	"daniel": {}, "access": {}, "1q2w3e4r": {}, "1qaz2wsx": {}, "zaq12wsx": {},
	"password!": {}, "p@ssword": {}, "p@ssw0rd": {}, "changeme": {}, "default": {},
}
