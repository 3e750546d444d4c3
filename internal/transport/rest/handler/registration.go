package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"heartstage/internal/model"
	"heartstage/internal/repository"
	"heartstage/internal/service"
	"heartstage/internal/show"
)

// RegistrationHandler handles the sign-up form boundary and roster import
type RegistrationHandler struct {
	registrations repository.RegistrationRepo
	rosterSvc     *service.RosterService
}

// NewRegistrationHandler creates a new registration handler
func NewRegistrationHandler(registrations repository.RegistrationRepo, rosterSvc *service.RosterService) *RegistrationHandler {
	return &RegistrationHandler{
		registrations: registrations,
		rosterSvc:     rosterSvc,
	}
}

// Create handles POST /v1/registrations (the public sign-up form)
func (h *RegistrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var entry model.RegistrationEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if entry.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if entry.Gender != model.GenderFemale && entry.Gender != model.GenderMale {
		writeError(w, http.StatusBadRequest, "gender must be female or male")
		return
	}

	entry.ID = uuid.New().String()
	if err := h.registrations.Create(r.Context(), &entry); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// List handles GET /v1/registrations?gender=
func (h *RegistrationHandler) List(w http.ResponseWriter, r *http.Request) {
	gender := r.URL.Query().Get("gender")
	if gender == "" {
		gender = model.GenderFemale
	}

	entries, err := h.registrations.ListEntries(r.Context(), gender)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []model.RegistrationEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Delete handles DELETE /v1/registrations/{gender}/{row}
func (h *RegistrationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	row, err := strconv.Atoi(vars["row"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid row index")
		return
	}

	if err := h.registrations.DeleteEntry(r.Context(), vars["gender"], row); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportRequest selects which roster to seed
type ImportRequest struct {
	Gender string `json:"gender"`
}

// Import handles POST /v1/roster/import
func (h *RegistrationHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := h.rosterSvc.Import(r.Context(), req.Gender)
	if err != nil {
		switch {
		case show.Blocked(err):
			status := http.StatusConflict
			code := "refused"
			if err == show.ErrNotHydrated {
				status = http.StatusLocked
				code = "blocked"
			}
			writeRefusal(w, status, code, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	resp := ActionResponse{}
	if task != nil {
		resp.SavedVersion = task.Version()
	} else {
		resp.NoOp = true
	}
	writeJSON(w, http.StatusOK, resp)
}
