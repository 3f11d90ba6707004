package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"expiry-reminders/internal/models"
)

// Placeholder names understood by the reminder templates.
const (
	KeyRecipientName   = "recipient_name"
	KeyItemTitle       = "item_title"
	KeyDaysLeft        = "days_left"
	KeyExpiryDate      = "expiry_date"
	KeyReferenceNumber = "reference_number"
	KeyDepartmentName  = "department_name"
	KeyOffset          = "offset"
)

// Render substitutes {{name}} and {name} placeholders found in values.
// Placeholders without a value are copied through unchanged, so rendering
// never fails.
func Render(tmpl string, values map[string]interface{}) string {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); {
		if tmpl[i] != '{' {
			b.WriteByte(tmpl[i])
			i++
			continue
		}

		if strings.HasPrefix(tmpl[i:], "{{") {
			if end := strings.Index(tmpl[i+2:], "}}"); end >= 0 {
				raw := tmpl[i : i+2+end+2]
				name := strings.TrimSpace(tmpl[i+2 : i+2+end])
				if v, ok := lookup(values, name); ok {
					b.WriteString(v)
				} else {
					b.WriteString(raw)
				}
				i += len(raw)
				continue
			}
		}

		if end := strings.IndexByte(tmpl[i+1:], '}'); end >= 0 {
			name := tmpl[i+1 : i+1+end]
			if v, ok := lookup(values, name); ok {
				b.WriteString(v)
				i += end + 2
				continue
			}
		}

		b.WriteByte('{')
		i++
	}
	return b.String()
}

func lookup(values map[string]interface{}, name string) (string, bool) {
	if !isIdentifier(name) {
		return "", false
	}
	v, ok := values[name]
	if !ok {
		return "", false
	}
	return Stringify(v), true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Stringify renders a template value deterministically: dates as ISO-8601
// calendar dates and numbers without locale grouping.
func Stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format(models.DateLayout)
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.Format(models.DateLayout)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// ReminderValues builds the placeholder mapping for one due reminder.
func ReminderValues(item models.Item, recipient models.Recipient, daysLeft, offset int) map[string]interface{} {
	return map[string]interface{}{
		KeyRecipientName:   recipient.Name,
		KeyItemTitle:       item.Title,
		KeyDaysLeft:        daysLeft,
		KeyExpiryDate:      item.ExpiryDate,
		KeyReferenceNumber: item.ReferenceNumber,
		KeyDepartmentName:  item.DepartmentName,
		KeyOffset:          offset,
	}
}
