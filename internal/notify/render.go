package notify

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownKind = errors.New("notify: unknown task kind")

const (
	dateLayout = "Monday, 02 January 2006"
	timeLayout = "15:04"
)

// Render turns a task into the email that is sent for it.
func Render(t Task) (EmailMessage, error) {
	if t.Email == "" {
		return EmailMessage{}, errors.New("notify: task has no recipient")
	}

	msg := EmailMessage{To: t.Email, ToName: t.RecipientName}
	var b strings.Builder

	switch t.Kind {
	case KindBooking:
		msg.Subject = "Appointment Booking"
		fmt.Fprintf(&b, "Hello %s,\n\n", t.RecipientName)
		fmt.Fprintf(&b, "An appointment with %s has been booked for %s, until %s.\n",
			t.CounterpartyName, t.Date.Format(dateLayout), t.Time.Format(timeLayout))
		b.WriteString("The appointment is pending until it is accepted.\n")
	case KindStatusUpdate:
		msg.Subject = "Appointment Update"
		fmt.Fprintf(&b, "Hello %s,\n\n", t.RecipientName)
		fmt.Fprintf(&b, "Your appointment with %s on %s, until %s, is now %s.\n",
			t.CounterpartyName, t.Date.Format(dateLayout), t.Time.Format(timeLayout), t.Status)
	case KindVerificationCode:
		msg.Subject = "Account Verification"
		fmt.Fprintf(&b, "Hello %s,\n\n", t.RecipientName)
		fmt.Fprintf(&b, "Your verification code is %s.\n", t.Code)
		if t.ExpiresInMinutes > 0 {
			fmt.Fprintf(&b, "It expires in %d minutes.\n", t.ExpiresInMinutes)
		}
	default:
		return EmailMessage{}, fmt.Errorf("%w: %q", ErrUnknownKind, t.Kind)
	}

	msg.Body = b.String()
	return msg, nil
}
