package updater

import (
	"strconv"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/flosch/pongo2/v6"
)

// fakeFunctions implements spec.md §4.5's fake_* generator functions over
// github.com/brianvoe/gofakeit/v7, adopted directly from the domain stack
// rather than hand-rolling random data generation.
func fakeFunctions() map[string]interface{} {
	return map[string]interface{}{
		"fake_words":        func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.HipsterWord()) },
		"fake_sentences":    func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.Sentence(8)) },
		"fake_paragraphs":   func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.Paragraph(3, 4, 8, " ")) },
		"fake_first_name":   func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.FirstName()) },
		"fake_last_name":    func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.LastName()) },
		"fake_email":        func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.Email()) },
		"fake_ipv4":         func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.IPv4Address()) },
		"fake_ipv6":         func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.IPv6Address()) },
		"fake_mac_address":  func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.MacAddress()) },
		"fake_color_hex":    func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.HexColor()) },
		"fake_user_agent":   func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.UserAgent()) },
		"fake_digit":        func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.Digit()) },
		"fake_city":         func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.City()) },
		"fake_country_name": func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.Country()) },
		"fake_country_code": func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.CountryAbr()) },
		"fake_currency_code": func(args ...*pongo2.Value) *pongo2.Value {
			return pongo2.AsValue(gofakeit.CurrencyShort())
		},
		"fake_currency_long": func(args ...*pongo2.Value) *pongo2.Value {
			return pongo2.AsValue(gofakeit.CurrencyLong())
		},
		"fake_credit_card": func(args ...*pongo2.Value) *pongo2.Value {
			return pongo2.AsValue(gofakeit.CreditCardNumber(nil))
		},
		"fake_barcode": func(args ...*pongo2.Value) *pongo2.Value { return pongo2.AsValue(gofakeit.Numerify("##########")) },
		"fake_phone_number": func(args ...*pongo2.Value) *pongo2.Value {
			format := namedArg(args, "format", "")
			if format != "" {
				return pongo2.AsValue(gofakeit.Numerify(format))
			}
			return pongo2.AsValue(gofakeit.Phone())
		},
		"fake_password": func(args ...*pongo2.Value) *pongo2.Value {
			min := namedArgInt(args, "min", 8)
			max := namedArgInt(args, "max", 16)
			length := min
			if max > min {
				length = min + gofakeit.Number(0, max-min)
			}
			return pongo2.AsValue(gofakeit.Password(true, true, true, true, false, length))
		},
	}
}

func namedArg(args []*pongo2.Value, key, def string) string {
	for _, a := range args {
		if m, ok := a.Interface().(map[string]interface{}); ok {
			if v, ok := m[key].(string); ok {
				return v
			}
		}
	}
	return def
}

func namedArgInt(args []*pongo2.Value, key string, def int) int {
	for _, a := range args {
		if m, ok := a.Interface().(map[string]interface{}); ok {
			switch v := m[key].(type) {
			case int:
				return v
			case float64:
				return int(v)
			case string:
				if n, err := strconv.Atoi(v); err == nil {
					return n
				}
			}
		}
	}
	return def
}
