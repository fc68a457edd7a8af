package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/tarancss/linka/lib/store"
	"github.com/tarancss/linka/lib/util"
)

const (
	walletSecretHeader = "X-Wallet-Secret"

	defaultPage  = 20
	maxPage      = 100
	zeroVolume   = "0.0"
	minEmailSize = 3
)

// createUserReq is the body of an identity creation. Password, when given, also protects the wallet key.
type createUserReq struct {
	Email    string         `json:"email"`
	Username string         `json:"username"`
	Password string         `json:"password"`
	Profile  *store.Profile `json:"profile"`
}

func validEmail(e string) bool {
	i := strings.Index(e, "@")

	return len(e) >= minEmailSize && i > 0 && i < len(e)-1 && !strings.ContainsAny(e, " /")
}

func checkProfile(p *store.Profile) error {
	if p.Categories == nil {
		p.Categories = []string{}
	}

	for _, c := range p.Categories {
		if !store.ValidCategory(c) {
			return fmt.Errorf("%w: unknown category %q", ErrBadRequest, c)
		}
	}

	return nil
}

// createUserHandler creates a user with a new custodial wallet.
func (s *Service) createUserHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	var req createUserReq
	if err = decode(r, &req); err != nil {
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)

	switch {
	case !validEmail(req.Email):
		err = fmt.Errorf("%w: a valid email is required", ErrBadRequest)
	case req.Username == "":
		err = fmt.Errorf("%w: username is required", ErrBadRequest)
	case req.Profile == nil:
		req.Profile = &store.Profile{Name: req.Username}
	}

	if err != nil {
		return
	}

	if err = checkProfile(req.Profile); err != nil {
		return
	}

	w, err := s.Keystore.CreateWallet(req.Password)
	if err != nil {
		return
	}

	now := time.Now().UTC()
	u := &store.User{
		Email:               req.Email,
		Username:            req.Username,
		WalletAddress:       w.Address,
		EncryptedPrivateKey: w.Ciphertext,
		Profile:             *req.Profile,
		Reputation:          store.Reputation{Score: store.DefaultScore, TotalVolume: zeroVolume, Source: store.SourceLocal},
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if req.Password != "" {
		var h []byte
		if h, err = bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost); err != nil {
			return
		}

		u.PasswordHash = string(h)
	}

	if err = s.DB.InsertUser(r.Context(), u); err != nil {
		return
	}

	log.WithFields(log.Fields{"email": u.Email, "address": u.WalletAddress}).Info("identity created")

	data = u
}

func (s *Service) userHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	var u *store.User
	if u, err = s.DB.GetUser(r.Context(), strings.ToLower(mux.Vars(r)["email"])); err == nil {
		data = u
	}
}

// profileReq accepts the profile either wrapped as {profile:{...}} or bare.
type profileReq struct {
	store.Profile
	Wrapped *store.Profile `json:"profile"`
}

func (s *Service) profileHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	var req profileReq
	if err = decode(r, &req); err != nil {
		return
	}

	p := req.Profile
	if req.Wrapped != nil {
		p = *req.Wrapped
	}

	if err = checkProfile(&p); err != nil {
		return
	}

	var u *store.User
	if u, err = s.DB.UpdateProfile(r.Context(), strings.ToLower(mux.Vars(r)["email"]), p); err == nil {
		data = u
	}
}

// farcasterReq is the body of a farcaster link. Fid is also accepted as farcasterFid.
type farcasterReq struct {
	FID          string `json:"fid"`
	FarcasterFID string `json:"farcasterFid"`
}

func (s *Service) farcasterHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	var req farcasterReq
	if err = decode(r, &req); err != nil {
		return
	}

	fid := util.FirstNonEmpty(req.FID, req.FarcasterFID)
	if fid == "" {
		err = fmt.Errorf("%w: fid is required", ErrBadRequest)

		return
	}

	var u *store.User
	if u, err = s.DB.LinkFarcaster(r.Context(), strings.ToLower(mux.Vars(r)["email"]), fid); err == nil {
		data = u
	}
}

// balanceHandler replies the tagged balance of the user's wallet. Users created with a password must send it in the
// X-Wallet-Secret header.
func (s *Service) balanceHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	var u *store.User
	if u, err = s.DB.GetUser(r.Context(), strings.ToLower(mux.Vars(r)["email"])); err != nil {
		return
	}

	secret := r.Header.Get(walletSecretHeader)
	if u.PasswordHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(secret)) != nil {
			err = ErrUnauthorized

			return
		}
	}

	b, err := s.Keystore.Balance(r.Context(), s.Balances, u.EncryptedPrivateKey, secret, r.URL.Query().Get("tok"))
	if err == nil {
		data = b
	}
}

// vendorsHandler lists vendors by reputation, optionally filtered by category and minimum score.
func (s *Service) vendorsHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	q := r.URL.Query()
	f := store.VendorFilter{Category: q.Get("category"), Page: 1, Limit: defaultPage}

	if f.Category != "" && !store.ValidCategory(f.Category) {
		err = fmt.Errorf("%w: unknown category %q", ErrBadRequest, f.Category)

		return
	}

	for name, dst := range map[string]*int{"page": &f.Page, "limit": &f.Limit} {
		if v := q.Get(name); v != "" {
			n, e := strconv.Atoi(v)
			if e != nil || n < 1 {
				err = fmt.Errorf("%w: %s must be a positive number", ErrBadRequest, name)

				return
			}

			*dst = n
		}
	}

	if f.Limit > maxPage {
		f.Limit = maxPage
	}

	if v := q.Get("minReputation"); v != "" {
		if f.MinReputation, err = strconv.ParseUint(v, 10, 64); err != nil {
			err = fmt.Errorf("%w: minReputation must be a number", ErrBadRequest)

			return
		}
	}

	vendors, total, err := s.DB.ListVendors(r.Context(), f)
	if err != nil {
		return
	}

	data = map[string]interface{}{
		"vendors": vendors,
		"pagination": map[string]interface{}{
			"page":  f.Page,
			"limit": f.Limit,
			"total": total,
			"pages": (total + int64(f.Limit) - 1) / int64(f.Limit),
		},
	}
}
