package api

import (
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"iris-triage/internal/rules"
)

// handleListRules responds to GET /api/v1/rules with every catalog rule
// sorted by name.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	all := s.rules.GetAll()
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	writeJSON(w, http.StatusOK, all)
}

// handleGetRule responds to GET /api/v1/rules/{name}. Lookup is
// case-insensitive.
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	rule, ok := s.rules.GetByName(name)
	if !ok {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// handleUpsertRule responds to PUT /api/v1/rules/{name}.
//
// The request body is the raw rule document. Metadata is parsed from the
// document header; the document round-trips to disk verbatim. Responds
// 201 when the rule is new, 200 when it replaces an existing entry.
func (s *Server) handleUpsertRule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxRuleBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "rule document too large")
		return
	}

	rule, err := rules.FromDocument(name, string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule document: "+err.Error())
		return
	}

	// Preserve the creation time across replacements.
	existing, existed := s.rules.GetByName(name)
	if existed {
		rule.CreatedAt = existing.CreatedAt
	}

	if err := s.rules.Save(rule); err != nil {
		if errors.Is(err, rules.ErrInvalidRule) {
			writeError(w, http.StatusBadRequest, "invalid rule document")
			return
		}
		s.logger.Error("rule save failed", "rule", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}

	saved, _ := s.rules.GetByName(name)
	code := http.StatusOK
	if !existed {
		code = http.StatusCreated
	}
	writeJSON(w, code, saved)
}

// handleDeleteRule responds to DELETE /api/v1/rules/{name}. Deleting an
// absent rule succeeds; the operation is idempotent.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.rules.Delete(name); err != nil {
		s.logger.Error("rule delete failed", "rule", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleReloadRules responds to POST /api/v1/rules/reload by re-reading
// the rule directory. Unparsable documents are reported as warnings, not
// failures.
func (s *Server) handleReloadRules(w http.ResponseWriter, r *http.Request) {
	catalog, warnings := s.rules.LoadAll()

	warningMsgs := make([]string, 0, len(warnings))
	for _, warning := range warnings {
		warningMsgs = append(warningMsgs, warning.Error())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":    len(catalog.Rules),
		"version":  catalog.Version,
		"warnings": warningMsgs,
	})
}
