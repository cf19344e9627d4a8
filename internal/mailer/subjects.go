package mailer

import "fmt"

// fallbackTitles are the built-in subject titles, completed with
// " - ETC #<etc>".
var fallbackTitles = map[string]string{
	"renewal-pending": "Vehicle Tracking Service Renewal Reminder",
	"renewal-done":    "Vehicle Tracking Service Renewal Confirmation",
	"new-account":     "Welcome to eTracking - Your Account Setup Complete",
	"device-transfer": "eTracking Device Transfer Completed Successfully",
	"device-redo":     "eTracking Device Reinstallation Completed Successfully",
	"device-addition": "New Device Successfully Added to Your eTracking Account",
}

// FallbackSubject returns the built-in subject for template. Unknown
// templates get the renewal-pending subject.
func FallbackSubject(template, key string) string {
	title, ok := fallbackTitles[template]
	if !ok {
		title = fallbackTitles["renewal-pending"]
	}
	return fmt.Sprintf("%s - ETC #%s", title, key)
}
