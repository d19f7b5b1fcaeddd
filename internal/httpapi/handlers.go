package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/communimeter/verify-worker/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

type queueItemResponse struct {
	ID              string    `json:"id"`
	MeterType       string    `json:"meter_type"`
	RawValue        string    `json:"raw_value"`
	NormalizedValue string    `json:"normalized_value"`
	Confidence      float64   `json:"confidence"`
	CapturedAt      time.Time `json:"captured_at"`
	VotesCount      int       `json:"votes_count"`
}

type queueResponse struct {
	Readings       []queueItemResponse `json:"readings"`
	TotalAvailable int                 `json:"total_available"`
}

type statusResponse struct {
	ReadingID        string  `json:"reading_id"`
	Status           string  `json:"status"`
	TotalVotes       int     `json:"total_votes"`
	VotesCorrect     int     `json:"votes_correct"`
	VotesIncorrect   int     `json:"votes_incorrect"`
	VotesUnclear     int     `json:"votes_unclear"`
	ConsensusReached bool    `json:"consensus_reached"`
	YourVote         *string `json:"your_vote"`
}

type voteResponse struct {
	ID             string    `json:"id"`
	ReadingID      string    `json:"reading_id"`
	Vote           string    `json:"vote"`
	SuggestedValue *string   `json:"suggested_value"`
	CreatedAt      time.Time `json:"created_at"`
}

type historyResponse struct {
	TotalVerifications    int            `json:"total_verifications"`
	VerificationsThisWeek int            `json:"verifications_this_week"`
	ConsensusMatches      int            `json:"consensus_matches"`
	ConsensusRate         float64        `json:"consensus_rate"`
	XPEarned              int            `json:"xp_earned"`
	RecentVotes           []voteResponse `json:"recent_votes"`
}

type leaderboardEntry struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"user_id"`
	DisplayName   string `json:"display_name"`
	TrustScore    int    `json:"trust_score"`
	Verifications int    `json:"verifications"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	verifierID, ok := s.verifierParam(w, r)
	if !ok {
		return
	}

	var meterType *string
	if mt := r.URL.Query().Get("meter_type"); mt != "" {
		meterType = &mt
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := s.svc.GetQueue(r.Context(), verifierID, meterType, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := queueResponse{
		Readings:       make([]queueItemResponse, 0, len(result.Items)),
		TotalAvailable: result.TotalAvailable,
	}
	for _, item := range result.Items {
		resp.Readings = append(resp.Readings, queueItemResponse{
			ID:              item.Reading.ID.String(),
			MeterType:       item.MeterType,
			RawValue:        item.Reading.RawValue,
			NormalizedValue: item.Reading.NormalizedValue,
			Confidence:      item.Reading.Confidence,
			CapturedAt:      item.Reading.CapturedAt,
			VotesCount:      item.VotesCount,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	readingID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid reading id"})
		return
	}
	verifierID, ok := s.verifierParam(w, r)
	if !ok {
		return
	}

	summary, err := s.svc.GetVerificationStatus(r.Context(), readingID, verifierID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := statusResponse{
		ReadingID:        summary.ReadingID.String(),
		Status:           string(summary.Status),
		TotalVotes:       summary.TotalVotes,
		VotesCorrect:     summary.VotesCorrect,
		VotesIncorrect:   summary.VotesIncorrect,
		VotesUnclear:     summary.VotesUnclear,
		ConsensusReached: summary.ConsensusReached,
	}
	if summary.YourVote != "" {
		vote := string(summary.YourVote)
		resp.YourVote = &vote
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	verifierID, ok := s.verifierParam(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	summary, err := s.svc.GetVerifierHistory(r.Context(), verifierID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := historyResponse{
		TotalVerifications:    summary.TotalVerifications,
		VerificationsThisWeek: summary.VerificationsThisWeek,
		ConsensusMatches:      summary.ConsensusMatches,
		ConsensusRate:         summary.ConsensusRate,
		XPEarned:              summary.XPEarned,
		RecentVotes:           make([]voteResponse, 0, len(summary.RecentVotes)),
	}
	for _, v := range summary.RecentVotes {
		resp.RecentVotes = append(resp.RecentVotes, voteResponse{
			ID:             v.ID.String(),
			ReadingID:      v.ReadingID.String(),
			Vote:           string(v.Vote),
			SuggestedValue: v.SuggestedValue,
			CreatedAt:      v.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	switch period {
	case "", "all":
		period = "all"
	case "week", "month":
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "period must be week, month or all"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := s.svc.GetLeaderboard(r.Context(), period, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	entries := make([]leaderboardEntry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, leaderboardEntry{
			Rank:          i + 1,
			UserID:        row.UserID.String(),
			DisplayName:   row.DisplayName,
			TrustScore:    row.TrustScore,
			Verifications: row.Verifications,
		})
	}

	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) verifierParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.URL.Query().Get("verifier_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "verifier_id is required"})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrReadingNotFound), errors.Is(err, service.ErrMeterNotFound),
		errors.Is(err, service.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrOwnReading):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrAlreadyVoted):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrInvalidVote), errors.Is(err, service.ErrSuggestedValueRequired):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
