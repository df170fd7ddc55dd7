package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is an amount in pence. Sterling only.
type Money int64

// ParseMoney reads amounts such as "£4,000.50", "GBP 1200", "4000" or "".
// Blank and placeholder values ("n/a", "-") are zero.
func ParseMoney(s string) (Money, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(clean, "GBP")
	clean = strings.TrimSuffix(clean, "GBP")
	clean = strings.NewReplacer("£", "", ",", "", " ", "", "\u00a0", "").Replace(clean)
	switch strings.ToLower(clean) {
	case "", "-", "n/a", "na", "nil", "none":
		return 0, nil
	}

	whole, frac, hasFrac := strings.Cut(clean, ".")
	pounds, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || pounds < 0 {
		return 0, &ValidationError{Field: "amount", Reason: ReasonFormat, Detail: fmt.Sprintf("%q", s)}
	}
	var pence int64
	if hasFrac {
		if len(frac) == 1 {
			frac += "0"
		}
		if len(frac) != 2 {
			return 0, &ValidationError{Field: "amount", Reason: ReasonFormat, Detail: fmt.Sprintf("%q", s)}
		}
		pence, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || pence < 0 {
			return 0, &ValidationError{Field: "amount", Reason: ReasonFormat, Detail: fmt.Sprintf("%q", s)}
		}
	}
	if pounds > (math.MaxInt64-pence)/100 {
		return 0, &ValidationError{Field: "amount", Reason: ReasonFormat, Detail: fmt.Sprintf("%q out of range", s)}
	}
	return Money(pounds*100 + pence), nil
}

// Pounds returns a whole-pound Money value.
func Pounds(n int64) Money { return Money(n * 100) }

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s£%s.%02d", sign, groupThousands(v/100), v%100)
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
