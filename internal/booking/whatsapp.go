package booking

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

var ErrNoWhatsAppNumber = errors.New("whatsapp business number is not configured")

// WhatsAppMessage is the prefilled customer message confirming b.
func WhatsAppMessage(b Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hello! I've booked %s service for my %s AC unit.\n\n", b.ServiceType, b.ACType)
	sb.WriteString("Details:\n")
	fmt.Fprintf(&sb, "📅 Date: %s\n", b.PreferredDate)
	fmt.Fprintf(&sb, "⏰ Time: %s\n", b.PreferredTime)
	fmt.Fprintf(&sb, "📍 Address: %s\n", b.Address)
	fmt.Fprintf(&sb, "👤 Name: %s\n", b.CustomerName)
	fmt.Fprintf(&sb, "📞 Phone: %s", b.CustomerPhone)
	if b.Notes != nil && *b.Notes != "" {
		fmt.Fprintf(&sb, "\n\n📝 Notes: %s", *b.Notes)
	}
	fmt.Fprintf(&sb, "\n\nBooking ID: #%d\n\nPlease confirm this appointment. Thank you!", b.ID)
	return sb.String()
}

// WhatsAppURL returns a wa.me deep link to number with the booking message.
// Non-digits in number are dropped.
func WhatsAppURL(number string, b Booking) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			return r
		}
		return -1
	}, number)
	if digits == "" {
		return "", ErrNoWhatsAppNumber
	}

	text := strings.ReplaceAll(url.QueryEscape(WhatsAppMessage(b)), "+", "%20")
	return "https://wa.me/" + digits + "?text=" + text, nil
}
