package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"expiry-reminders/internal/models"
)

func TestRender(t *testing.T) {
	values := map[string]interface{}{
		KeyRecipientName: "Aisha",
		KeyItemTitle:     "Office lease",
		KeyDaysLeft:      7,
		KeyExpiryDate:    time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"double braces", "Hi {{recipient_name}}, {{item_title}} expires in {{days_left}} days.",
			"Hi Aisha, Office lease expires in 7 days."},
		{"single braces", "Hi {recipient_name}: {item_title} on {expiry_date}",
			"Hi Aisha: Office lease on 2024-06-30"},
		{"whitespace in double braces", "{{ recipient_name }}", "Aisha"},
		{"unknown kept verbatim", "{{manager}} / {manager}", "{{manager}} / {manager}"},
		{"non identifier kept", "{ not a key } {}", "{ not a key } {}"},
		{"unterminated", "Hello {{recipient_name", "Hello {{recipient_name"},
		{"json braces", `{"a": 1} {days_left}`, `{"a": 1} 7`},
		{"empty template", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.tmpl, values))
		})
	}
}

func TestRender_MissingKeysNeverFail(t *testing.T) {
	out := Render("{{recipient_name}} {{days_left}}", nil)
	assert.Equal(t, "{{recipient_name}} {{days_left}}", out)
}

func TestStringify(t *testing.T) {
	d := time.Date(2024, 6, 30, 15, 4, 0, 0, time.UTC)
	assert.Equal(t, "2024-06-30", Stringify(d))
	assert.Equal(t, "2024-06-30", Stringify(&d))
	assert.Equal(t, "1234567", Stringify(1234567))
	assert.Equal(t, "-3", Stringify(int64(-3)))
	assert.Equal(t, "2.5", Stringify(2.5))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "telegram", Stringify(models.ChannelTelegram))
}

func TestReminderValues(t *testing.T) {
	item := trackedItem("2024-06-30", 7)
	item.DepartmentName = "Legal"
	item.ReferenceNumber = "C-17"

	out := Render(reminderTestTemplate, ReminderValues(item, models.Recipient{Name: "Omar"}, 7, 7))
	assert.Equal(t, "Omar: Office lease (C-17, Legal) expires 2024-06-30, 7 days left", out)
}

const reminderTestTemplate = "{{recipient_name}}: {{item_title}} ({reference_number}, {department_name}) expires {expiry_date}, {days_left} days left"
