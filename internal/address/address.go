// Package address разбирает и нормализует почтовые адреса в свободной форме.
package address

import "strings"

// Parsed — результат разбора адресной строки.
type Parsed struct {
	Street     string
	City       string
	PostalCode string
}

// Parse разбирает адрес, разделённый запятыми.
// При трёх и более сегментах последний — индекс, предпоследний — город,
// остальное — улица. При двух сегментах второй — город без индекса.
// Один сегмент целиком считается улицей. Функция тотальна: на любом входе
// возвращает результат, недостающие части остаются пустыми строками.
func Parse(raw string) Parsed {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	switch {
	case len(parts) >= 3:
		return Parsed{
			Street:     strings.Join(parts[:len(parts)-2], ", "),
			City:       parts[len(parts)-2],
			PostalCode: parts[len(parts)-1],
		}
	case len(parts) == 2:
		return Parsed{
			Street: parts[0],
			City:   parts[1],
		}
	default:
		return Parsed{Street: strings.TrimSpace(raw)}
	}
}

// Normalize приводит текст к виду для сравнения на равенство:
// пунктуация удаляется, пробелы схлопываются, буквы переводятся в нижний регистр.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Equal сравнивает два адресных фрагмента без учёта регистра,
// пунктуации и лишних пробелов.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
