package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/liao/chat-analyst/internal/analysis"
	"github.com/liao/chat-analyst/internal/chat"
	"github.com/liao/chat-analyst/internal/query"
	"github.com/liao/chat-analyst/internal/render"
	"github.com/liao/chat-analyst/internal/upload"
)

type messageRequest struct {
	Content string `json:"content"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	slog.Info("session created", "session", sess.ID)
	respondWithJSON(w, http.StatusCreated, map[string]string{"id": sess.ID})
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.Reset()
	if s.forget != nil {
		s.forget(sess.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// putTranscript 接受 multipart 的 file 字段，或直接把请求体当作文本
func (s *Server) putTranscript(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	limit := s.upload.MaxBytes
	if limit <= 0 {
		limit = upload.DefaultMaxBytes
	}
	// multipart 头部额外留 1MB
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)

	name, data, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	text, err := upload.Decode(name, data, s.upload)
	if err != nil {
		respondWithError(w, uploadStatus(err), err.Error())
		return
	}

	res := sess.Upload(text)
	if s.forget != nil {
		s.forget(sess.ID)
	}
	slog.Info("transcript uploaded", "session", sess.ID, "ok", res.OK, "records", res.Records)
	if !res.OK {
		respondWithJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func readUpload(r *http.Request) (string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		return r.URL.Query().Get("name"), data, err
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	return header.Filename, data, err
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, upload.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) getRecords(w http.ResponseWriter, r *http.Request) {
	t := sessionFrom(r).Transcript()
	if t == nil {
		respondWithError(w, http.StatusNotFound, query.UploadPrompt)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"count":   len(t.Records),
		"senders": t.Senders(),
		"records": t.Records,
	})
}

func (s *Server) getTopWords(w http.ResponseWriter, r *http.Request) {
	t := sessionFrom(r).Transcript()
	if t == nil {
		respondWithError(w, http.StatusNotFound, query.UploadPrompt)
		return
	}

	n := analysis.DefaultTopN
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			respondWithError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"words": analysis.TopWords(t.Records, n),
	})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		respondWithError(w, http.StatusBadRequest, "content is required")
		return
	}

	ans, err := s.answers.Answer(r.Context(), sessionFrom(r), req.Content)
	if errors.Is(err, chat.ErrAnswerPending) {
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, ans)
}

func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, render.ProjectSession(sessionFrom(r)))
}
