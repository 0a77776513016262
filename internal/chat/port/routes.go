package port

import "net/http"

// RegisterRoutes mounts every Chat-core route on mux using the stdlib
// ServeMux's method+pattern matching (Go 1.22+). Route dispatch is the one
// piece of the external routing layer this repo must still wire
// up to produce a runnable service; the handlers themselves hold all the
// actual logic.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /devices", h.RegisterDevice)
	mux.HandleFunc("POST /devices/keys", h.RegisterKeys)
	mux.HandleFunc("POST /devices/prekeys", h.UploadPrekeys)
	mux.HandleFunc("GET /keys/bundle/{device_id}", func(w http.ResponseWriter, r *http.Request) {
		h.GetKeyBundle(w, r, r.PathValue("device_id"))
	})

	mux.HandleFunc("POST /messages/direct", h.SendDirect)
	mux.HandleFunc("GET /messages/inbox", h.Inbox)
	mux.HandleFunc("GET /messages/stream", h.Stream)

	mux.HandleFunc("POST /groups", h.CreateGroup)
	mux.HandleFunc("PATCH /groups/{group_id}", func(w http.ResponseWriter, r *http.Request) {
		h.UpdateGroup(w, r, r.PathValue("group_id"))
	})
	mux.HandleFunc("POST /groups/{group_id}/roles", func(w http.ResponseWriter, r *http.Request) {
		h.ChangeRole(w, r, r.PathValue("group_id"))
	})
	mux.HandleFunc("POST /groups/{group_id}/members", func(w http.ResponseWriter, r *http.Request) {
		h.InviteMember(w, r, r.PathValue("group_id"))
	})
	mux.HandleFunc("POST /groups/{group_id}/leave", func(w http.ResponseWriter, r *http.Request) {
		h.LeaveGroup(w, r, r.PathValue("group_id"))
	})
	mux.HandleFunc("POST /groups/{group_id}/key-rotations", func(w http.ResponseWriter, r *http.Request) {
		h.RotateGroupKey(w, r, r.PathValue("group_id"))
	})
	mux.HandleFunc("POST /groups/{group_id}/messages", func(w http.ResponseWriter, r *http.Request) {
		h.SendGroupMessage(w, r, r.PathValue("group_id"))
	})
	mux.HandleFunc("GET /groups/{group_id}/messages", func(w http.ResponseWriter, r *http.Request) {
		h.GroupInbox(w, r, r.PathValue("group_id"))
	})

	mux.HandleFunc("POST /mailbox", h.IssueMailbox)
	mux.HandleFunc("POST /mailbox/write", h.WriteMailbox)
	mux.HandleFunc("POST /mailbox/poll", h.PollMailbox)
	mux.HandleFunc("POST /mailbox/rotate", h.RotateMailbox)
}
