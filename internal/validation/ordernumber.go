// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
)

const orderNumberPrefix = "ORD-"

// IsValidOrderNumber проверяет формат номера заказа: префикс "ORD-"
// и не менее пяти цифр ASCII после него.
func IsValidOrderNumber(number string) bool {
	if !strings.HasPrefix(number, orderNumberPrefix) {
		return false
	}

	digits := number[len(orderNumberPrefix):]
	if len(digits) < 5 {
		return false
	}

	for _, ch := range digits {
		if ch < '0' || ch > '9' {
			return false
		}
	}

	return true
}
