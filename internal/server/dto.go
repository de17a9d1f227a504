package server

import "coolcare/internal/booking"

type errorResp struct {
	Error string `json:"error"`
}

type successResp struct {
	Success bool `json:"success"`
}

type loginReq struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

type createBookingResp struct {
	Success   bool   `json:"success"`
	BookingID int64  `json:"bookingId"`
	Message   string `json:"message"`
}

type bookingsResp struct {
	Bookings []booking.Booking `json:"bookings"`
}

type chatReq struct {
	Message string `json:"message"`
}

type chatResp struct {
	Reply string `json:"reply"`
}

type whatsappResp struct {
	WhatsAppURL string `json:"whatsappUrl"`
}
