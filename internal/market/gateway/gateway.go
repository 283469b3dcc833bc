// Package gateway implements the marketplace client against an HTTP
// session gateway that terminates the actual wire protocol. One gateway
// serves every tenant; sessions are addressed by (tenant, role) headers.
package gateway

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/go-resty/resty/v2"

	"gift_sniper/internal/config"
	"gift_sniper/internal/logbus"
	"gift_sniper/internal/market"
	"gift_sniper/internal/model"
)

type Dialer struct {
	cfg config.GatewayConfig
	bus *logbus.Bus
}

func NewDialer(cfg config.GatewayConfig, bus *logbus.Bus) *Dialer {
	return &Dialer{cfg: cfg, bus: bus}
}

func (d *Dialer) Client(tenant string, role market.Role, proxy *model.Proxy) market.Client {
	client := resty.New().
		SetBaseURL(d.cfg.BaseURL).
		SetTimeout(d.cfg.Timeout()).
		SetRetryCount(d.cfg.Retry.Count).
		SetRetryWaitTime(d.cfg.Retry.Wait()).
		SetRetryMaxWaitTime(d.cfg.Retry.MaxWait()).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			if r == nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("X-Tenant", tenant).
		SetHeader("X-Role", string(role))

	if proxy != nil {
		client.SetProxy(proxy.URL())
	}

	bus := d.bus
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if bus != nil {
			bus.Log(tenant, "debug", "gateway request", map[string]any{
				"method": req.Method,
				"url":    req.URL,
				"role":   string(role),
			})
		}
		return nil
	})

	return &session{tenant: tenant, role: role, http: client}
}

type session struct {
	tenant    string
	role      market.Role
	http      *resty.Client
	connected atomic.Bool
}

type envelope[T any] struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

func (e envelope[T]) err(fallback string) error {
	if e.OK {
		return nil
	}
	if e.Code != "" {
		return &market.RPCError{Code: e.Code, Message: e.Message}
	}
	if e.Message != "" {
		return errors.New(e.Message)
	}
	return errors.New(fallback)
}

func (s *session) Connect(ctx context.Context) error {
	var resp envelope[struct{}]
	_, err := s.http.R().
		SetContext(ctx).
		SetResult(&resp).
		Post("/session/connect")
	if err != nil {
		return err
	}
	if err := resp.err("connect failed"); err != nil {
		return err
	}
	s.connected.Store(true)
	return nil
}

func (s *session) Disconnect(ctx context.Context) error {
	s.connected.Store(false)
	var resp envelope[struct{}]
	_, err := s.http.R().
		SetContext(ctx).
		SetResult(&resp).
		Post("/session/disconnect")
	if err != nil {
		return err
	}
	return resp.err("disconnect failed")
}

func (s *session) IsConnected() bool {
	return s.connected.Load()
}

func (s *session) Me(ctx context.Context) (market.User, error) {
	if !s.connected.Load() {
		return market.User{}, market.ErrNotConnected
	}
	var resp envelope[market.User]
	_, err := s.http.R().
		SetContext(ctx).
		SetResult(&resp).
		Get("/session/me")
	if err != nil {
		return market.User{}, err
	}
	return resp.Data, resp.err("me failed")
}

func (s *session) StarsBalance(ctx context.Context) (int64, error) {
	var resp envelope[struct {
		Amount int64 `json:"amount"`
	}]
	_, err := s.http.R().
		SetContext(ctx).
		SetResult(&resp).
		Get("/balance/stars")
	if err != nil {
		return 0, err
	}
	return resp.Data.Amount, resp.err("stars balance failed")
}

func (s *session) TonBalanceNano(ctx context.Context) (int64, error) {
	var resp envelope[struct {
		AmountNano int64 `json:"amountNano"`
	}]
	_, err := s.http.R().
		SetContext(ctx).
		SetResult(&resp).
		Get("/balance/ton")
	if err != nil {
		return 0, err
	}
	return resp.Data.AmountNano, resp.err("ton balance failed")
}

func (s *session) ResolvePeer(ctx context.Context, recipient string) (market.Peer, error) {
	var resp envelope[market.Peer]
	_, err := s.http.R().
		SetContext(ctx).
		SetQueryParam("recipient", recipient).
		SetResult(&resp).
		Get("/peers/resolve")
	if err != nil {
		return market.Peer{}, err
	}
	return resp.Data, resp.err("resolve peer failed")
}

func (s *session) SearchResale(ctx context.Context, giftID int64, limit int) ([]model.Offer, error) {
	var resp envelope[[]model.Offer]
	_, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"giftId": strconv.FormatInt(giftID, 10),
			"order":  "price",
			"limit":  strconv.Itoa(limit),
		}).
		SetResult(&resp).
		Get("/gifts/resale/search")
	if err != nil {
		return nil, err
	}
	return resp.Data, resp.err("resale search failed")
}

type sendResoldGiftReq struct {
	Link       string      `json:"link"`
	Recipient  string      `json:"recipient"`
	UseTon     bool        `json:"useTon"`
	CachedPeer *market.Peer `json:"cachedPeer,omitempty"`
}

func (s *session) SendResoldGift(ctx context.Context, link, recipient string, useTon bool, peer market.Peer) error {
	body := sendResoldGiftReq{Link: link, Recipient: recipient, UseTon: useTon}
	if !peer.IsZero() {
		body.CachedPeer = &peer
	}
	var resp envelope[struct{}]
	_, err := s.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&resp).
		Post("/gifts/resale/send")
	if err != nil {
		return err
	}
	return resp.err("send resold gift failed")
}
