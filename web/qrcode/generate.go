package qrcode

import (
	qrcode "github.com/skip2/go-qrcode"
)

// PaymentLinkPNG renders a claim link as a 256px QR code PNG.
func PaymentLinkPNG(url string) ([]byte, error) {
	return qrcode.Encode(url, qrcode.Medium, 256)
}
