package server

import "net/http"

func (s *Server) handleIngestionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Status())
}

func (s *Server) handleIngestionStart(w http.ResponseWriter, r *http.Request) {
	s.daemonTransition(w, s.daemon.Start)
}

func (s *Server) handleIngestionStop(w http.ResponseWriter, r *http.Request) {
	s.daemonTransition(w, s.daemon.Stop)
}

func (s *Server) handleIngestionPause(w http.ResponseWriter, r *http.Request) {
	s.daemonTransition(w, s.daemon.Pause)
}

func (s *Server) handleIngestionResume(w http.ResponseWriter, r *http.Request) {
	s.daemonTransition(w, s.daemon.Resume)
}

// daemonTransition runs one control operation and echoes the resulting
// status with the transition message attached.
func (s *Server) daemonTransition(w http.ResponseWriter, op func() string) {
	msg := op()
	status := s.daemon.Status()
	status.Message = msg
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleIngestionRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.ListRecentRuns(r.Context(), 50)
	if err != nil {
		renderStoreError(w, err, "Runs not found")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
