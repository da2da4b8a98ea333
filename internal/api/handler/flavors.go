package handler

import (
	"net/http"

	"github.com/craftyard/craftyard/internal/api/response"
	"github.com/craftyard/craftyard/internal/catalog"
)

// Flavors serves the supported server distributions.
type Flavors struct{}

func NewFlavors() *Flavors {
	return &Flavors{}
}

func (h *Flavors) List(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, catalog.List())
}
