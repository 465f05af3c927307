package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/model"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/storage"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/store"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	errUnknownProduct = errors.New("product not found")
	errBadRequest     = errors.New("malformed request")
)

// lineView is a cart line as the page draws it.
type lineView struct {
	model.CartLine
	Icon      string `json:"icon"`
	LineTotal int64  `json:"line_total"`
}

type snapshotView struct {
	Items   []lineView         `json:"items"`
	Count   int                `json:"count"`
	Total   int64              `json:"total"`
	User    *model.UserSession `json:"user,omitempty"`
	Initial string             `json:"initial,omitempty"`
}

func (s *Server) view(snap model.Snapshot) snapshotView {
	v := snapshotView{
		Items: make([]lineView, 0, len(snap.Items)),
		Count: snap.Count,
		Total: snap.Total,
		User:  snap.User,
	}
	for _, l := range snap.Items {
		v.Items = append(v.Items, lineView{CartLine: l, Icon: s.catalog.Icon(l.ProductID), LineTotal: l.Subtotal()})
	}
	if snap.User != nil {
		v.Initial = snap.User.Initial()
	}
	return v
}

func (s *Server) session(r *http.Request) (*store.Session, error) {
	sess, err := s.registry.Get(r.Context(), sessionID(r))
	if err != nil {
		return nil, errors.Wrap(err, "could not load session")
	}
	return sess, nil
}

func (s *Server) productsHandler(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *store.Session) {
		s.respond(w, sess, http.StatusOK, map[string]interface{}{"products": s.catalog.List()})
	})
}

func (s *Server) viewCartHandler(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *store.Session) {
		s.respond(w, sess, http.StatusOK, nil)
	})
}

func (s *Server) addToCartHandler(w http.ResponseWriter, r *http.Request) {
	log := r.Context().Value(ctxKeyLog{}).(logrus.FieldLogger)
	var payload struct {
		ID string `json:"id"`
	}
	if err := decode(r, &payload); err != nil {
		s.renderHTTPError(log, w, nil, err, http.StatusBadRequest, nil)
		return
	}
	s.withSession(w, r, func(sess *store.Session) {
		p, ok := s.catalog.Get(payload.ID)
		if !ok {
			s.fail(w, r, sess, errors.Wrapf(errUnknownProduct, "product %q", payload.ID))
			return
		}
		log.WithField("product", p.ID).Debug("adding to cart")
		if err := sess.Store.AddItem(r.Context(), p.ID, p.Name, p.Price); err != nil {
			s.fail(w, r, sess, err)
			return
		}
		s.respond(w, sess, http.StatusOK, nil)
	})
}

func (s *Server) setQuantityHandler(w http.ResponseWriter, r *http.Request) {
	log := r.Context().Value(ctxKeyLog{}).(logrus.FieldLogger)
	var payload struct {
		Quantity *int `json:"quantity"`
	}
	if err := decode(r, &payload); err != nil {
		s.renderHTTPError(log, w, nil, err, http.StatusBadRequest, nil)
		return
	}
	if payload.Quantity == nil {
		s.renderHTTPError(log, w, nil, errors.Wrap(errBadRequest, "quantity is required"), http.StatusBadRequest, nil)
		return
	}
	id := mux.Vars(r)["id"]
	s.withSession(w, r, func(sess *store.Session) {
		if err := sess.Store.SetQuantity(r.Context(), id, *payload.Quantity); err != nil {
			s.fail(w, r, sess, err)
			return
		}
		s.respond(w, sess, http.StatusOK, nil)
	})
}

func (s *Server) removeFromCartHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.withSession(w, r, func(sess *store.Session) {
		if err := sess.Store.RemoveItem(r.Context(), id); err != nil {
			s.fail(w, r, sess, err)
			return
		}
		s.respond(w, sess, http.StatusOK, nil)
	})
}

func (s *Server) checkoutHandler(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *store.Session) {
		receipt, err := sess.Store.Checkout(r.Context())
		if err != nil {
			s.fail(w, r, sess, err)
			return
		}
		s.respond(w, sess, http.StatusOK, map[string]interface{}{"order": receipt})
	})
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	log := r.Context().Value(ctxKeyLog{}).(logrus.FieldLogger)
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &payload); err != nil {
		s.renderHTTPError(log, w, nil, err, http.StatusBadRequest, nil)
		return
	}
	s.withSession(w, r, func(sess *store.Session) {
		if err := sess.Store.Login(r.Context(), payload.Email, payload.Password); err != nil {
			s.fail(w, r, sess, err)
			return
		}
		s.respond(w, sess, http.StatusOK, nil)
	})
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	log := r.Context().Value(ctxKeyLog{}).(logrus.FieldLogger)
	var payload struct {
		Name            string `json:"name"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := decode(r, &payload); err != nil {
		s.renderHTTPError(log, w, nil, err, http.StatusBadRequest, nil)
		return
	}
	s.withSession(w, r, func(sess *store.Session) {
		err := sess.Store.Register(r.Context(), payload.Name, payload.Email, payload.Password, payload.ConfirmPassword)
		if err != nil {
			s.fail(w, r, sess, err)
			return
		}
		s.respond(w, sess, http.StatusOK, nil)
	})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *store.Session) {
		if err := sess.Store.Logout(r.Context()); err != nil {
			s.fail(w, r, sess, err)
			return
		}
		s.respond(w, sess, http.StatusOK, nil)
	})
}

func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *store.Session) {
		s.respond(w, sess, http.StatusOK, map[string]interface{}{
			"authenticated": sess.Store.Authenticated(),
		})
	})
}

func (s *Server) notificationsHandler(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *store.Session) {
		s.respond(w, sess, http.StatusOK, nil)
	})
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, "ok")
}

func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(sess *store.Session)) {
	sess, err := s.session(r)
	if err != nil {
		log := r.Context().Value(ctxKeyLog{}).(logrus.FieldLogger)
		s.renderHTTPError(log, w, nil, err, statusFor(err), nil)
		return
	}
	fn(sess)
}

func (s *Server) respond(w http.ResponseWriter, sess *store.Session, code int, extra map[string]interface{}) {
	payload := map[string]interface{}{
		"snapshot":      s.view(sess.Store.Snapshot()),
		"notifications": sess.Board.Drain(),
	}
	for k, v := range extra {
		payload[k] = v
	}
	writeJSON(w, code, payload)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, sess *store.Session, err error) {
	log := r.Context().Value(ctxKeyLog{}).(logrus.FieldLogger)
	var extra map[string]interface{}
	if errors.Is(err, store.ErrAuthRequired) {
		extra = map[string]interface{}{"action": "login"}
	}
	s.renderHTTPError(log, w, sess, err, statusFor(err), extra)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, errUnknownProduct):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// renderHTTPError writes the error body. When the session is known the
// snapshot and the toasts are attached as well.
func (s *Server) renderHTTPError(log logrus.FieldLogger, w http.ResponseWriter, sess *store.Session, err error, code int, extra map[string]interface{}) {
	entry := log.WithField("error", err)
	if code >= http.StatusInternalServerError {
		entry.Error("request error")
	} else {
		entry.Info("request rejected")
	}

	payload := map[string]interface{}{
		"error":       err.Error(),
		"status_code": code,
	}
	if sess != nil {
		payload["snapshot"] = s.view(sess.Store.Snapshot())
		payload["notifications"] = sess.Board.Drain()
	}
	for k, v := range extra {
		payload[k] = v
	}
	writeJSON(w, code, payload)
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func sessionID(r *http.Request) string {
	v := r.Context().Value(ctxKeySessionID{})
	if v != nil {
		return v.(string)
	}
	return ""
}
