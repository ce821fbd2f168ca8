package validation

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	emailPattern  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	expiryPattern = regexp.MustCompile(`^[0-9]{2}/[0-9]{2}$`)
)

// Digits drops every non-digit rune.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateCardNumber checks length 13-19 and the Luhn checksum.
func ValidateCardNumber(number string) bool {
	digits := Digits(number)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	return luhnChecksum(digits) == 0
}

func luhnChecksum(digits string) int {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum % 10
}

func ValidateCVV(cvv string) bool {
	if len(cvv) != 3 && len(cvv) != 4 {
		return false
	}
	for _, r := range cvv {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidateExpiry accepts exactly MM/YY and rejects cards whose month is already over.
func ValidateExpiry(expiry string, now time.Time) bool {
	if !expiryPattern.MatchString(expiry) {
		return false
	}
	mm, _ := strconv.Atoi(expiry[:2])
	yy, _ := strconv.Atoi(expiry[3:])
	if mm < 1 || mm > 12 {
		return false
	}

	curYear := now.Year() % 100
	curMonth := int(now.Month())
	if yy < curYear || (yy == curYear && mm < curMonth) {
		return false
	}
	return true
}

// ValidateCPF recomputes both check digits. The second digit is derived from
// the tenth digit as supplied, not from the recomputed first digit.
func ValidateCPF(cpf string) bool {
	digits := Digits(cpf)
	if len(digits) != 11 {
		return false
	}
	if strings.Count(digits, digits[:1]) == 11 {
		return false
	}

	nums := make([]int, 11)
	for i := range digits {
		nums[i] = int(digits[i] - '0')
	}

	if cpfCheckDigit(nums[:9], 10) != nums[9] {
		return false
	}
	return cpfCheckDigit(nums[:10], 11) == nums[10]
}

func cpfCheckDigit(nums []int, weight int) int {
	sum := 0
	for i, n := range nums {
		sum += n * (weight - i)
	}
	rem := (sum * 10) % 11
	if rem >= 10 {
		return 0
	}
	return rem
}

func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}
