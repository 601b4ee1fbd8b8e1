package server

import (
	"errors"
	"net/http"

	"github.com/opencode-ai/wagate/internal/logging"
	"github.com/opencode-ai/wagate/internal/router"
)

// sendMessage handles POST /send-message.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.fields(w, r)
	if !ok {
		return
	}
	if missing := fields.require("number", "message"); missing != nil {
		writeValidation(w, missing)
		return
	}

	s.dispatchOp(w, r, fields.get("sender"), router.SendText{
		To:   fields.get("number"),
		Text: fields.values["message"],
	})
}

// sendMedia handles POST /send-media. The file is either a multipart
// upload or a URL to fetch. An unknown sender is rejected before either.
func (s *Server) sendMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.media.maxBytes+formMemory)
	fields, ok := s.fields(w, r)
	if !ok {
		return
	}

	if missing := fields.require("number"); missing != nil {
		writeValidation(w, missing)
		return
	}
	// The sender is resolved before any media is read or fetched.
	sender := fields.get("sender")
	if err := s.dispatch.Resolve(sender); err != nil {
		writeDispatchError(w, err)
		return
	}
	upload := fields.file("file")
	if upload == nil && fields.get("file") == "" {
		writeValidation(w, map[string]string{"file": msgInvalidValue})
		return
	}

	op := router.SendMedia{
		To:      fields.get("number"),
		Caption: fields.values["caption"],
	}
	var err error
	if upload != nil {
		op.Media, err = s.media.fromUpload(upload)
	} else {
		op.Media, err = s.media.fromURL(r.Context(), fields.get("file"))
	}
	if err != nil {
		if errors.Is(err, ErrMediaTooLarge) {
			writeRejected(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeValidation(w, map[string]string{"file": err.Error()})
		return
	}

	s.dispatchOp(w, r, sender, op)
}

// sendGroupMessage handles POST /send-group-message.
func (s *Server) sendGroupMessage(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.fields(w, r)
	if !ok {
		return
	}

	missing := fields.require("message")
	if fields.get("id") == "" && fields.get("name") == "" {
		if missing == nil {
			missing = make(map[string]string)
		}
		missing["id"] = msgInvalidGroupID
	}
	if missing != nil {
		writeValidation(w, missing)
		return
	}

	s.dispatchOp(w, r, fields.get("sender"), router.SendGroupMessage{
		ID:    fields.get("id"),
		Group: fields.get("name"),
		Text:  fields.values["message"],
	})
}

// clearMessage handles POST /clear-message.
func (s *Server) clearMessage(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.fields(w, r)
	if !ok {
		return
	}
	if missing := fields.require("number"); missing != nil {
		writeValidation(w, missing)
		return
	}

	s.dispatchOp(w, r, fields.get("sender"), router.ClearChat{Number: fields.get("number")})
}

// fields reads the request body, answering 400 if it cannot be decoded.
func (s *Server) fields(w http.ResponseWriter, r *http.Request) (requestFields, bool) {
	fields, err := readFields(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeRejected(w, http.StatusRequestEntityTooLarge, ErrMediaTooLarge.Error())
			return fields, false
		}
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return fields, false
	}
	return fields, true
}

func (s *Server) dispatchOp(w http.ResponseWriter, r *http.Request, sender string, op router.Operation) {
	if tok := tokenFrom(r.Context()); tok != nil {
		logging.Debug().Str("user", tok.Username).Str("sender", sender).Str("op", op.Name()).Msg("Dispatching")
	}

	result, err := s.dispatch.Dispatch(r.Context(), sender, op)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeOK(w, result)
}
