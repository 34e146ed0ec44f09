// internal/service/checkout/infrastructure/adapter/identity_http_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"

	"bazaar/internal/pkg/httpclient"
	"bazaar/internal/service/checkout/domain"
	"bazaar/internal/service/checkout/domain/port"
)

// IdentityHTTPAdapter 是 port.IdentityService 的 HTTP 实现，
// 调用外部身份服务拉取用户邮箱与称呼。
type IdentityHTTPAdapter struct {
	httpc   *httpclient.Client
	baseURL string
}

func NewIdentityHTTPAdapter(httpc *httpclient.Client, baseURL string) *IdentityHTTPAdapter {
	return &IdentityHTTPAdapter{httpc: httpc, baseURL: baseURL}
}

func (a *IdentityHTTPAdapter) GetUser(ctx context.Context, userID string) (*port.User, error) {
	resp, err := a.httpc.Do(ctx, http.MethodGet, a.baseURL+"/users/"+userID, nil, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "identity service request failed")
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.Errorf("identity service returned status %d", resp.StatusCode)
	}

	var user port.User
	if err := json.Unmarshal(resp.Body, &user); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to decode identity response")
	}
	if user.ID == "" {
		user.ID = userID
	}
	return &user, nil
}

// StaticIdentityAdapter 在没有外部身份服务时使用：
// 用请求头里带来的邮箱兜底，查不到就返回裸 ID。
type StaticIdentityAdapter struct{}

func (StaticIdentityAdapter) GetUser(_ context.Context, userID string) (*port.User, error) {
	return &port.User{ID: userID}, nil
}
