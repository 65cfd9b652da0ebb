package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"videodocs/core"
	"videodocs/docindex"
	"videodocs/pipeline"
	"videodocs/prompt"
)

const maxUploadBytes = 2 << 30 // 2 GiB

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	core.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"api_ready": s.cfg.HasValidAPI(),
	})
}

func (s *Server) handleModes(w http.ResponseWriter, _ *http.Request) {
	core.WriteJSON(w, http.StatusOK, map[string]interface{}{"modes": prompt.All()})
}

// handleUpload accepts a multipart video upload, registers a session
// and runs the pipeline in the background. The response returns the
// session id immediately; callers poll status.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		core.WriteError(w, http.StatusBadRequest, fmt.Sprintf("parsing upload: %v", err))
		return
	}
	file, header, err := r.FormFile("video")
	if err != nil {
		core.WriteError(w, http.StatusBadRequest, "missing video file field")
		return
	}
	defer file.Close()

	mode := prompt.Parse(r.FormValue("mode"))
	def := prompt.Lookup(mode)
	title := r.FormValue("title")
	if title == "" {
		title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	var keywords []string
	for _, kw := range strings.Split(r.FormValue("keywords"), ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	segmented := r.FormValue("segmented") == "true"

	sess := s.manager.Create("", title, string(mode), def.Name)
	if err := s.manager.Transition(sess.ID, core.StatusDownloading, "receiving upload"); err != nil {
		core.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	videoPath, err := s.saveUpload(sess.ID, header.Filename, file)
	if err != nil {
		_ = s.manager.Fail(sess.ID, err.Error())
		core.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.manager.StartProcessing(sess.ID); err != nil {
		core.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	req := pipeline.Request{
		VideoPath:   videoPath,
		SessionID:   sess.ID,
		Title:       title,
		ProjectName: r.FormValue("project"),
		Keywords:    keywords,
		Mode:        mode,
		Progress: func(progress int, stage string) {
			s.manager.UpdateProgress(sess.ID, progress, stage)
		},
		Cancelled: func() bool {
			return s.manager.IsCancelled(sess.ID)
		},
	}
	go s.runPipeline(req, segmented)

	core.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"session_id": sess.ID,
		"status":     core.StatusProcessing,
		"mode":       mode,
	})
}

func (s *Server) saveUpload(sessionID, filename string, src io.Reader) (string, error) {
	dir := filepath.Join(s.cfg.DataDir, sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("writing upload: %w", err)
	}
	return path, nil
}

// runPipeline executes one run in the background and finalizes the
// session from the outcome.
func (s *Server) runPipeline(req pipeline.Request, segmented bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()

	var result *core.PipelineResult
	var err error
	if segmented {
		result, err = s.orch.RunSegmented(ctx, req, float64(s.cfg.SegmentSeconds))
	} else {
		result, err = s.orch.Run(ctx, req)
	}
	if errors.Is(err, pipeline.ErrCancelled) {
		log.Printf("server: session %s cancelled mid-run", req.SessionID)
		return
	}
	if err != nil {
		log.Printf("server: session %s failed: %v", req.SessionID, err)
		if ferr := s.manager.Fail(req.SessionID, err.Error()); ferr != nil {
			log.Printf("server: recording failure for %s: %v", req.SessionID, ferr)
		}
		return
	}

	meta := map[string]interface{}{
		"frames_count": result.FramesCount,
	}
	if result.STTProvider != "" {
		meta["stt_provider"] = result.STTProvider
	}
	if result.Transcript != "" {
		meta["transcript"] = result.Transcript
	}
	if len(result.TranscriptSegments) > 0 {
		meta["transcript_segments"] = result.TranscriptSegments
	}
	if cerr := s.manager.Complete(req.SessionID, result.ResultPath, meta); cerr != nil {
		log.Printf("server: completing %s: %v", req.SessionID, cerr)
	}

	if s.index != nil {
		entries := docindex.SectionEntries(result.Documentation)
		if len(entries) > 0 {
			if _, ierr := s.index.Upsert(ctx, req.SessionID, entries); ierr != nil {
				log.Printf("server: indexing %s: %v", req.SessionID, ierr)
			}
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, ok := s.manager.GetStatus(id)
	if !ok {
		core.WriteError(w, http.StatusNotFound, "session not found")
		return
	}
	core.WriteJSON(w, http.StatusOK, sess)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, ok := s.manager.GetStatus(id)
	if !ok {
		core.WriteError(w, http.StatusNotFound, "session not found")
		return
	}
	if sess.Status != core.StatusCompleted {
		core.WriteError(w, http.StatusConflict, fmt.Sprintf("session is %s", sess.Status))
		return
	}
	doc, err := s.store.LoadDocumentation(id)
	if err != nil {
		core.WriteError(w, http.StatusNotFound, "documentation not found")
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":    id,
		"documentation": doc,
		"metadata":      sess.Metadata,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	changed, err := s.manager.Cancel(id)
	if err != nil {
		core.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"cancelled":  changed,
	})
}

func (s *Server) handleActive(w http.ResponseWriter, _ *http.Request) {
	sess, ok := s.manager.GetActive()
	if !ok {
		core.WriteJSON(w, http.StatusOK, map[string]interface{}{"active": nil})
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]interface{}{"active": sess})
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	sessions, err := s.store.GetAll()
	if err != nil {
		core.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		core.WriteError(w, http.StatusNotImplemented, "search index not configured")
		return
	}
	id := mux.Vars(r)["id"]
	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		core.WriteError(w, http.StatusBadRequest, "query is required")
		return
	}
	hits, err := s.index.Search(r.Context(), id, req.Query, req.TopK)
	if err != nil {
		core.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"query":      req.Query,
		"hits":       hits,
	})
}
