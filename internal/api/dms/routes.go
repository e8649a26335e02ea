package dms

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterDMRoutes mounts the contact and message routes behind mw.
func RegisterDMRoutes(r *mux.Router, handler *DMHandler, mw ...mux.MiddlewareFunc) {
	contact := r.PathPrefix("/api/contact").Subrouter()
	contact.Use(mw...)
	contact.HandleFunc("/get-dm-list", handler.GetDMList).Methods(http.MethodGet)
	contact.HandleFunc("/search", handler.SearchContacts).Methods(http.MethodPost)
	contact.HandleFunc("/block-user/{userId}", handler.BlockUser).Methods(http.MethodPost)
	contact.HandleFunc("/presence/{userId}", handler.GetPresence).Methods(http.MethodGet)

	message := r.PathPrefix("/api/message").Subrouter()
	message.Use(mw...)
	message.HandleFunc("/get-messages", handler.GetMessages).Methods(http.MethodPost)
	message.HandleFunc("/search", handler.SearchMessages).Methods(http.MethodPost)
}
