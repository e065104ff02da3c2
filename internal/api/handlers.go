package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	jsoniter "github.com/json-iterator/go"

	"hive-staking/internal/model"
	"hive-staking/internal/pkg/jsonx"
)

const contentType = "application/json; charset=utf-8"

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	return jsonx.NewEncoder(w).Encode(v)
}

func parseJSON(r *http.Request, v interface{}) error {
	dec := jsonx.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, badRequest(errors.New("amount is required"))
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, badRequest(fmt.Errorf("invalid amount %q: %w", s, err))
	}
	return v, nil
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

type fundingRequest struct {
	SenderID string `json:"sender_id"`
	Amount   string `json:"amount"`
	Msg      string `json:"msg"`
}

func (s *Server) handleFunding(w http.ResponseWriter, r *http.Request) error {
	var req fundingRequest
	if err := parseJSON(r, &req); err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	if err := s.engine.Fund(r.Context(), r.Header.Get(CallerHeader), req.SenderID, amount, req.Msg); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{
		"total_available": amountString(s.engine.GetPoolStatus().Available),
	})
}

type itemReceivedRequest struct {
	SenderID string              `json:"sender_id"`
	TokenID  string              `json:"token_id"`
	Metadata jsoniter.RawMessage `json:"metadata"`
}

func (s *Server) handleItemReceived(w http.ResponseWriter, r *http.Request) error {
	var req itemReceivedRequest
	if err := parseJSON(r, &req); err != nil {
		return err
	}
	index, err := s.engine.ReceiveItem(r.Context(), r.Header.Get(CallerHeader), req.SenderID, req.TokenID, req.Metadata)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, map[string]int{"stake_index": index})
}

type stakeView struct {
	Index           int       `json:"index"`
	ItemIDs         []string  `json:"item_ids"`
	Queen           int       `json:"queen"`
	Worker          int       `json:"worker"`
	Drone           int       `json:"drone"`
	Weight          uint64    `json:"weight"`
	StartTime       time.Time `json:"start_time"`
	LockupSeconds   int64     `json:"lockup_seconds"`
	UnclaimedReward string    `json:"unclaimed_reward"`
	Claimed         bool      `json:"claimed"`
}

type stakesResponse struct {
	Staker       string      `json:"staker"`
	TotalClaimed string      `json:"total_claimed"`
	Stakes       []stakeView `json:"stakes"`
}

func (s *Server) handleStakes(w http.ResponseWriter, r *http.Request) error {
	staker := mux.Vars(r)["id"]
	summaries := s.engine.GetStakingInfo(staker)

	resp := stakesResponse{
		Staker:       staker,
		TotalClaimed: amountString(s.engine.GetTotalClaimed(staker)),
		Stakes:       make([]stakeView, len(summaries)),
	}
	for i, sum := range summaries {
		resp.Stakes[i] = stakeView{
			Index:           sum.Index,
			ItemIDs:         sum.ItemIDs,
			Queen:           sum.Queen,
			Worker:          sum.Worker,
			Drone:           sum.Drone,
			Weight:          sum.Weight,
			StartTime:       sum.StartTime,
			LockupSeconds:   sum.LockupDuration,
			UnclaimedReward: amountString(sum.UnclaimedReward),
			Claimed:         sum.Claimed,
		}
	}
	return writeJSON(w, http.StatusOK, resp)
}

type rankView struct {
	Staker       string `json:"staker"`
	Weight       uint64 `json:"weight"`
	Stakes       int    `json:"stakes"`
	TotalClaimed string `json:"total_claimed"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) error {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return badRequest(errors.New("limit must be between 1 and 100"))
		}
		limit = n
	}
	ranks := s.engine.GetTopStakers(limit)
	out := make([]rankView, len(ranks))
	for i, rk := range ranks {
		out[i] = rankView{Staker: rk.Staker, Weight: rk.Weight, Stakes: rk.Stakes, TotalClaimed: amountString(rk.TotalClaimed)}
	}
	return writeJSON(w, http.StatusOK, out)
}

type poolResponse struct {
	TotalAvailable       string    `json:"total_available"`
	LastDistributionTime time.Time `json:"last_distribution_time"`
	SecondsUntilNext     int64     `json:"seconds_until_next"`
	Policy               string    `json:"policy"`
	Stakers              int       `json:"stakers"`
	Stakes               int       `json:"stakes"`
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) error {
	st := s.engine.GetPoolStatus()
	return writeJSON(w, http.StatusOK, poolResponse{
		TotalAvailable:       amountString(st.Available),
		LastDistributionTime: st.LastDistributionTime,
		SecondsUntilNext:     int64(st.UntilNext / time.Second),
		Policy:               st.Policy,
		Stakers:              st.Stakers,
		Stakes:               st.Stakes,
	})
}

type fundingView struct {
	Amount    string    `json:"amount"`
	Sender    string    `json:"sender"`
	Memo      string    `json:"memo,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleFundingHistory(w http.ResponseWriter, r *http.Request) error {
	history := s.engine.GetFundingHistory()
	out := make([]fundingView, len(history))
	for i, f := range history {
		out[i] = fundingView{Amount: amountString(f.Amount), Sender: f.Sender, Memo: f.Memo, Timestamp: f.Timestamp}
	}
	return writeJSON(w, http.StatusOK, out)
}

type failureView struct {
	Kind      model.TransferKind `json:"kind"`
	Recipient string             `json:"recipient"`
	Amount    string             `json:"amount,omitempty"`
	ItemIDs   []string           `json:"item_ids,omitempty"`
	Reason    string             `json:"reason"`
	CreatedAt time.Time          `json:"created_at"`
}

func (s *Server) handleFailedTransfers(w http.ResponseWriter, r *http.Request) error {
	failures := s.engine.FailedTransfers()
	out := make([]failureView, len(failures))
	for i, f := range failures {
		v := failureView{Kind: f.Kind, Recipient: f.Recipient, ItemIDs: f.ItemIDs, Reason: f.Reason, CreatedAt: f.CreatedAt}
		if f.Amount != nil {
			v.Amount = f.Amount.Dec()
		}
		out[i] = v
	}
	return writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) error {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			return &httpError{cause: fmt.Errorf("unhealthy: %w", err), status: http.StatusServiceUnavailable}
		}
	}
	return writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
