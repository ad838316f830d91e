package handlers

import (
	"encoding/json"
	"net/http"
)

type tokenRequest struct {
	CompanyID string `json:"company_id"`
	APISecret string `json:"api_secret"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// IssueToken exchanges company credentials for a bearer token
// @Summary Issue token
// @Description Validates the company's API secret and returns a signed bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body tokenRequest true "Company credentials"
// @Success 200 {object} tokenResponse "Signed token"
// @Failure 401 {object} errorBody "Invalid credentials"
// @Router /auth/token [post]
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if req.CompanyID == "" || req.APISecret == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "company_id and api_secret are required"})
		return
	}

	token, err := h.auth.IssueToken(r.Context(), req.CompanyID, req.APISecret)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}
