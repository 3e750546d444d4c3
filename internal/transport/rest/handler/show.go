package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"heartstage/internal/model"
	"heartstage/internal/show"
)

// ShowHandler exposes the show snapshot and the single mutation endpoint
type ShowHandler struct {
	engine *show.Engine
}

// NewShowHandler creates a new show handler
func NewShowHandler(engine *show.Engine) *ShowHandler {
	return &ShowHandler{engine: engine}
}

// ActionRequest is the body of POST /v1/show/action. Action names map 1:1
// to engine mutations; only the fields the named action needs are read.
type ActionRequest struct {
	Action string `json:"action"`

	GuestID int               `json:"guestId,omitempty"`
	Status  model.LightStatus `json:"status,omitempty"`

	MaleGuestID   int `json:"maleGuestId,omitempty"`
	FemaleGuestID int `json:"femaleGuestId,omitempty"`

	State *model.StatePatch `json:"state,omitempty"`

	FemaleGuests []model.FemaleGuest `json:"femaleGuests,omitempty"`
	MaleGuests   []model.MaleGuest   `json:"maleGuests,omitempty"`

	SlideID  string `json:"slideId,omitempty"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	DeckPage int    `json:"deckPage,omitempty"`

	// Wait makes the request block until the durable save lands, so the
	// caller can surface "temporarily can't save" instead of finding out
	// from the logs.
	Wait bool `json:"wait,omitempty"`
}

// ActionResponse reports what the mutation produced
type ActionResponse struct {
	SavedVersion int64  `json:"savedVersion"`
	NoOp         bool   `json:"noop,omitempty"`
	SlideID      string `json:"slideId,omitempty"`
}

// Get handles GET /v1/show
func (h *ShowHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

// Action handles POST /v1/show/action
func (h *ShowHandler) Action(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		task    *show.SaveTask
		slideID string
		err     error
	)

	switch req.Action {
	case "setLight":
		task, err = h.engine.SetLight(req.GuestID, req.Status)
	case "resetLights":
		task, err = h.engine.ResetLights()
	case "updateState":
		if req.State == nil {
			writeError(w, http.StatusBadRequest, "missing state patch")
			return
		}
		task, err = h.engine.UpdateState(*req.State)
	case "setHeartChoice":
		task, err = h.engine.SetHeartChoice(req.MaleGuestID, req.FemaleGuestID)
	case "nextPhase":
		task, err = h.engine.NextPhase()
	case "prevPhase":
		task, err = h.engine.PrevPhase()
	case "setFemaleGuests":
		task, err = h.engine.SetFemaleGuests(req.FemaleGuests)
	case "setMaleGuests":
		task, err = h.engine.SetMaleGuests(req.MaleGuests)
	case "createSlide":
		slideID, task, err = h.engine.CreateSlide(req.Name)
	case "setSlideImage":
		task, err = h.engine.SetSlideImage(req.SlideID, req.ImageURL)
	case "setSlideDeckPage":
		task, err = h.engine.SetSlideDeckPage(req.SlideID, req.DeckPage)
	case "clearSlide":
		task, err = h.engine.ClearSlide(req.SlideID)
	case "deleteSlide":
		task, err = h.engine.DeleteSlide(req.SlideID)
	case "resetEvent":
		task, err = h.engine.ResetEvent()
	default:
		writeError(w, http.StatusBadRequest, "unknown action "+req.Action)
		return
	}

	if err != nil {
		h.writeActionError(w, err)
		return
	}

	resp := ActionResponse{SlideID: slideID}
	if task == nil {
		// Silent no-op (e.g. a light already finalized for the round)
		resp.NoOp = true
		resp.SavedVersion = h.engine.Snapshot().SavedVersion
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.SavedVersion = task.Version()
	if req.Wait {
		if err := task.Wait(r.Context()); err != nil {
			log.Printf("action %s: save failed: %v", req.Action, err)
			writeRefusal(w, http.StatusBadGateway, "save_failed",
				"state updated locally but the durable save failed; it will be visible to this instance only")
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeActionError keeps the error classes apart: guard-rail refusals
// are not generic failures and get their own codes.
func (h *ShowHandler) writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, show.ErrNotHydrated):
		writeRefusal(w, http.StatusLocked, "blocked", err.Error())
	case errors.Is(err, show.ErrEmptyRoster), errors.Is(err, show.ErrPresetSlide):
		writeRefusal(w, http.StatusConflict, "refused", err.Error())
	case errors.Is(err, show.ErrSlideNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, show.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
