package server

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/opencode-ai/wagate/internal/event"
	"github.com/opencode-ai/wagate/internal/logging"
)

// qrSize is the edge length in pixels of rendered pairing codes.
const qrSize = 256

// Frame is one message pushed to an observer.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// QRData is the payload of qr frames: the raw code and a PNG data URL
// ready to be used as an img src.
type QRData struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Src  string `json:"src,omitempty"`
}

// frameFor converts a bus event to its push frame.
func frameFor(e event.Event) Frame {
	switch data := e.Data.(type) {
	case event.SnapshotData:
		return Frame{Event: string(e.Type), Data: data.Sessions}
	case event.PairingCodeData:
		return Frame{Event: string(e.Type), Data: QRData{ID: data.ID, Code: data.Code, Src: renderQR(data.Code)}}
	}
	if e.Type == event.SessionRemoved {
		return Frame{Event: string(e.Type), Data: e.SessionID}
	}
	return Frame{Event: string(e.Type), Data: e.Data}
}

// renderQR encodes code as a PNG data URL. It returns "" if the code
// cannot be encoded.
func renderQR(code string) string {
	png, err := qrcode.Encode(code, qrcode.Medium, qrSize)
	if err != nil {
		logging.Warn().Err(err).Msg("QR encode failed")
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
