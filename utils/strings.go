package utils

import (
	"strings"
	"unsafe"
)

func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return *(*string)(unsafe.Pointer(&b))
}

// TitleFromID derives a human-readable label from a machine identifier:
// "sales_order-line" becomes "Sales Order Line".
func TitleFromID(id string) string {
	if id == "" {
		return ""
	}

	parts := strings.FieldsFunc(id, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})

	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}

	return strings.Join(parts, " ")
}
