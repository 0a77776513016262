package port

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/shamell/shamell/internal/domain"
)

// deviceLoginURI renders the shamell:// deep link a QR code encodes for the
// new-device handshake.
func deviceLoginURI(token, label string) string {
	v := url.Values{}
	v.Set("token", token)
	if label != "" {
		v.Set("label", label)
	}
	return "shamell://device_login?" + v.Encode()
}

// DeviceLoginQR renders the device-login URI as an SVG QR code, with the
// pixel size clamped to [QRPixelSizeMin, QRPixelSizeMax].
func (h *AuthHandler) DeviceLoginQR(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	label := r.URL.Query().Get("label")
	if token == "" {
		writeError(w, domain.ErrInvalidInput)
		return
	}

	size := domain.QRPixelSizeMax
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err == nil {
			size = parsed
		}
	}
	if size < domain.QRPixelSizeMin {
		size = domain.QRPixelSizeMin
	}
	if size > domain.QRPixelSizeMax {
		size = domain.QRPixelSizeMax
	}

	svg, err := renderQRSVG(deviceLoginURI(token, label), size)
	if err != nil {
		writeError(w, fmt.Errorf("render qr: %w", domain.ErrInvalidInput))
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(svg))
}

// renderQRSVG encodes content as a QR code via skip2/go-qrcode's bitmap
// output and paints it as a minimal SVG (the library only ships
// PNG/terminal renderers natively).
func renderQRSVG(content string, pixelSize int) (string, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	bitmap := qr.Bitmap()
	modules := len(bitmap)
	if modules == 0 {
		return "", fmt.Errorf("empty qr bitmap")
	}
	cell := float64(pixelSize) / float64(modules)

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="%d" height="%d" shape-rendering="crispEdges">`,
		pixelSize, pixelSize, pixelSize, pixelSize)
	b.WriteString(`<rect width="100%" height="100%" fill="#ffffff"/>`)
	for y, row := range bitmap {
		for x, dark := range row {
			if !dark {
				continue
			}
			fmt.Fprintf(&b, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="#000000"/>`,
				float64(x)*cell, float64(y)*cell, cell, cell)
		}
	}
	b.WriteString(`</svg>`)
	return b.String(), nil
}
