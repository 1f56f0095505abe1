package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"sharedlists/api/internal/store"
)

type apiClient struct {
	t       *testing.T
	handler http.Handler
}

func (c apiClient) do(method, path, token, body string) (int, map[string]any) {
	c.t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		c.t.Fatalf("parse %s %s response: %v body=%s", method, path, err, rr.Body.String())
	}
	return rr.Code, payload
}

func newTestAPI(t *testing.T) (apiClient, *Service, *memStore) {
	t.Helper()
	svc, st := newTestService(t, Options{})
	return apiClient{t: t, handler: NewHTTPServer(svc, "*").Handler()}, svc, st
}

func tokenFor(t *testing.T, svc *Service, actor Actor) string {
	t.Helper()
	session, err := svc.issueSession(context.Background(), store.UserProfile{
		UID:         actor.UID,
		Email:       actor.Email,
		DisplayName: actor.DisplayName,
	})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return session.Token
}

func expectStatus(t *testing.T, got, want int, payload map[string]any) {
	t.Helper()
	if got != want {
		t.Fatalf("expected status %d, got %d payload=%v", want, got, payload)
	}
}

func expectErrorCode(t *testing.T, payload map[string]any, code string) {
	t.Helper()
	if got, _ := payload["code"].(string); got != code {
		t.Fatalf("expected code %s, got %v", code, payload)
	}
}

func TestHealthAndReady(t *testing.T) {
	api, _, st := newTestAPI(t)

	status, payload := api.do(http.MethodGet, "/api/health", "", "")
	expectStatus(t, status, http.StatusOK, payload)

	status, payload = api.do(http.MethodGet, "/api/ready", "", "")
	expectStatus(t, status, http.StatusOK, payload)
	if payload["status"] != "ready" {
		t.Fatalf("expected ready, got %v", payload)
	}

	st.pingErr = errors.New("db down")
	status, payload = api.do(http.MethodGet, "/api/ready", "", "")
	expectStatus(t, status, http.StatusServiceUnavailable, payload)
	if payload["status"] != "not_ready" {
		t.Fatalf("expected not_ready, got %v", payload)
	}
}

func TestSignUpSignInAndSession(t *testing.T) {
	api, _, _ := newTestAPI(t)

	status, payload := api.do(http.MethodPost, "/api/auth/signup", "", `{"email":"erin@example.com","password":"password123","displayName":"  Erin "}`)
	expectStatus(t, status, http.StatusCreated, payload)
	if payload["userName"] != "Erin" || payload["token"] == "" {
		t.Fatalf("unexpected signup payload %v", payload)
	}

	status, payload = api.do(http.MethodPost, "/api/auth/signup", "", `{"email":"erin@example.com","password":"password123"}`)
	expectStatus(t, status, http.StatusConflict, payload)
	expectErrorCode(t, payload, "EMAIL_EXISTS")

	status, payload = api.do(http.MethodPost, "/api/auth/signup", "", `{"email":"frank@example.com","password":"short"}`)
	expectStatus(t, status, http.StatusUnprocessableEntity, payload)

	status, payload = api.do(http.MethodPost, "/api/auth/signin", "", `{"email":"erin@example.com","password":"nope-nope"}`)
	expectStatus(t, status, http.StatusUnauthorized, payload)
	expectErrorCode(t, payload, "INVALID_CREDENTIALS")

	status, payload = api.do(http.MethodPost, "/api/auth/signin", "", `{"email":"erin@example.com","password":"password123"}`)
	expectStatus(t, status, http.StatusOK, payload)
	token, _ := payload["token"].(string)
	refreshToken, _ := payload["refreshToken"].(string)

	status, payload = api.do(http.MethodGet, "/api/session", token, "")
	expectStatus(t, status, http.StatusOK, payload)
	if payload["authenticated"] != true || payload["email"] != "erin@example.com" {
		t.Fatalf("unexpected session payload %v", payload)
	}

	status, payload = api.do(http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+refreshToken+`"}`)
	expectStatus(t, status, http.StatusOK, payload)
	rotated, _ := payload["refreshToken"].(string)
	if rotated == "" || rotated == refreshToken {
		t.Fatalf("expected a rotated refresh token, got %v", payload)
	}

	status, payload = api.do(http.MethodPost, "/api/session/logout", token, `{"refreshToken":"`+rotated+`"}`)
	expectStatus(t, status, http.StatusOK, payload)

	status, payload = api.do(http.MethodGet, "/api/session", token, "")
	expectStatus(t, status, http.StatusOK, payload)
	if payload["authenticated"] != false {
		t.Fatalf("expected logged out session, got %v", payload)
	}
	status, payload = api.do(http.MethodGet, "/api/spaces", token, "")
	expectStatus(t, status, http.StatusUnauthorized, payload)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api, _, _ := newTestAPI(t)

	for _, path := range []string{"/api/spaces", "/api/lists/ls_1/items", "/api/search?q=milk"} {
		status, payload := api.do(http.MethodGet, path, "", "")
		expectStatus(t, status, http.StatusUnauthorized, payload)
		expectErrorCode(t, payload, "UNAUTHORIZED")
	}
	status, payload := api.do(http.MethodGet, "/api/spaces", "not-a-jwt", "")
	expectStatus(t, status, http.StatusUnauthorized, payload)
}

func TestSpaceMembershipFlow(t *testing.T) {
	api, svc, _ := newTestAPI(t)
	aliceToken := tokenFor(t, svc, alice)
	bobToken := tokenFor(t, svc, bob)
	daveToken := tokenFor(t, svc, dave)

	status, payload := api.do(http.MethodPost, "/api/spaces", aliceToken, `{"name":""}`)
	expectStatus(t, status, http.StatusUnprocessableEntity, payload)
	expectErrorCode(t, payload, "VALIDATION_ERROR")

	status, payload = api.do(http.MethodPost, "/api/spaces", aliceToken, `{"name":"Home"}`)
	expectStatus(t, status, http.StatusCreated, payload)
	spaceID, _ := payload["id"].(string)
	if spaceID == "" || payload["ownerId"] != alice.UID {
		t.Fatalf("unexpected space payload %v", payload)
	}

	status, payload = api.do(http.MethodPost, "/api/spaces/"+spaceID+"/members", aliceToken, `{"email":"ghost@example.com"}`)
	expectStatus(t, status, http.StatusNotFound, payload)

	status, payload = api.do(http.MethodPost, "/api/spaces/"+spaceID+"/members", aliceToken, `{"email":"bob@example.com"}`)
	expectStatus(t, status, http.StatusCreated, payload)
	if payload["role"] != "editor" || payload["uid"] != bob.UID {
		t.Fatalf("unexpected member payload %v", payload)
	}

	status, payload = api.do(http.MethodGet, "/api/spaces/"+spaceID, bobToken, "")
	expectStatus(t, status, http.StatusOK, payload)
	if payload["role"] != "editor" {
		t.Fatalf("expected editor role, got %v", payload)
	}

	status, payload = api.do(http.MethodGet, "/api/spaces", bobToken, "")
	expectStatus(t, status, http.StatusOK, payload)
	if spaces, _ := payload["spaces"].([]any); len(spaces) != 1 {
		t.Fatalf("expected one visible space, got %v", payload)
	}

	status, payload = api.do(http.MethodGet, "/api/spaces/"+spaceID, daveToken, "")
	expectStatus(t, status, http.StatusForbidden, payload)
	expectErrorCode(t, payload, "FORBIDDEN")

	status, payload = api.do(http.MethodPatch, "/api/spaces/"+spaceID+"/members/"+alice.UID, aliceToken, `{"role":"viewer"}`)
	expectStatus(t, status, http.StatusForbidden, payload)

	status, payload = api.do(http.MethodPatch, "/api/spaces/"+spaceID+"/members/"+bob.UID, aliceToken, `{"role":"admin"}`)
	expectStatus(t, status, http.StatusUnprocessableEntity, payload)

	status, payload = api.do(http.MethodPatch, "/api/spaces/"+spaceID+"/members/"+bob.UID, aliceToken, `{"role":"viewer"}`)
	expectStatus(t, status, http.StatusOK, payload)
	if payload["role"] != "viewer" || payload["updatedAt"] == nil {
		t.Fatalf("unexpected member payload %v", payload)
	}

	status, payload = api.do(http.MethodGet, "/api/spaces/"+spaceID+"/members", bobToken, "")
	expectStatus(t, status, http.StatusOK, payload)
	if members, _ := payload["members"].([]any); len(members) != 2 {
		t.Fatalf("expected two members, got %v", payload)
	}

	status, payload = api.do(http.MethodDelete, "/api/spaces/"+spaceID+"/members/"+bob.UID, bobToken, "")
	expectStatus(t, status, http.StatusOK, payload)

	status, payload = api.do(http.MethodGet, "/api/spaces/"+spaceID, bobToken, "")
	expectStatus(t, status, http.StatusForbidden, payload)

	status, payload = api.do(http.MethodDelete, "/api/spaces/"+spaceID, aliceToken, "")
	expectStatus(t, status, http.StatusOK, payload)
	status, payload = api.do(http.MethodGet, "/api/spaces/"+spaceID, aliceToken, "")
	expectStatus(t, status, http.StatusNotFound, payload)
}

func TestListAndItemFlow(t *testing.T) {
	api, svc, _ := newTestAPI(t)
	aliceToken := tokenFor(t, svc, alice)
	space := seedSpace(t, svc)
	carolToken := tokenFor(t, svc, carol)

	status, payload := api.do(http.MethodPost, "/api/spaces/"+space.ID+"/lists", aliceToken, `{"name":"Groceries"}`)
	expectStatus(t, status, http.StatusCreated, payload)
	listID, _ := payload["id"].(string)

	status, payload = api.do(http.MethodPost, "/api/spaces/"+space.ID+"/lists", carolToken, `{"name":"Nope"}`)
	expectStatus(t, status, http.StatusForbidden, payload)

	var itemIDs []string
	for _, text := range []string{"milk", "eggs"} {
		status, payload = api.do(http.MethodPost, "/api/lists/"+listID+"/items", aliceToken, `{"text":"`+text+`"}`)
		expectStatus(t, status, http.StatusCreated, payload)
		id, _ := payload["id"].(string)
		itemIDs = append(itemIDs, id)
	}
	if payload["order"] != float64(2) || payload["completedAt"] != nil {
		t.Fatalf("unexpected item payload %v", payload)
	}

	status, payload = api.do(http.MethodPost, "/api/lists/"+listID+"/items", aliceToken, `{"text":"  "}`)
	expectStatus(t, status, http.StatusUnprocessableEntity, payload)

	status, payload = api.do(http.MethodPatch, "/api/lists/"+listID+"/items/"+itemIDs[0], aliceToken, `{"toggle":true}`)
	expectStatus(t, status, http.StatusOK, payload)
	if payload["completed"] != true || payload["completedAt"] == nil {
		t.Fatalf("toggle should complete the item, got %v", payload)
	}

	status, payload = api.do(http.MethodPatch, "/api/lists/"+listID+"/items/"+itemIDs[0], aliceToken, `{"text":"oat milk","completed":false}`)
	expectStatus(t, status, http.StatusOK, payload)
	if payload["text"] != "oat milk" || payload["completed"] != false {
		t.Fatalf("unexpected item payload %v", payload)
	}

	status, payload = api.do(http.MethodPatch, "/api/lists/"+listID+"/items/"+itemIDs[0], aliceToken, `{}`)
	expectStatus(t, status, http.StatusUnprocessableEntity, payload)

	status, payload = api.do(http.MethodPost, "/api/lists/"+listID+"/items/"+itemIDs[1]+"/move", aliceToken, `{"direction":"sideways"}`)
	expectStatus(t, status, http.StatusUnprocessableEntity, payload)

	status, payload = api.do(http.MethodPost, "/api/lists/"+listID+"/items/"+itemIDs[1]+"/move", aliceToken, `{"direction":"up"}`)
	expectStatus(t, status, http.StatusOK, payload)
	items, _ := payload["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected two items, got %v", payload)
	}
	if first, _ := items[0].(map[string]any); first["id"] != itemIDs[1] {
		t.Fatalf("expected %s first after move, got %v", itemIDs[1], items)
	}

	status, payload = api.do(http.MethodGet, "/api/lists/"+listID+"/items", carolToken, "")
	expectStatus(t, status, http.StatusOK, payload)
	items, _ = payload["items"].([]any)
	if first, _ := items[0].(map[string]any); len(items) != 2 || first["id"] != itemIDs[1] {
		t.Fatalf("unexpected items %v", payload)
	}

	status, payload = api.do(http.MethodDelete, "/api/lists/"+listID+"/items/"+itemIDs[0], carolToken, "")
	expectStatus(t, status, http.StatusForbidden, payload)
	status, payload = api.do(http.MethodDelete, "/api/lists/"+listID+"/items/"+itemIDs[0], aliceToken, "")
	expectStatus(t, status, http.StatusOK, payload)
	status, payload = api.do(http.MethodDelete, "/api/lists/"+listID+"/items/"+itemIDs[0], aliceToken, "")
	expectStatus(t, status, http.StatusNotFound, payload)

	status, payload = api.do(http.MethodPatch, "/api/lists/"+listID, aliceToken, `{"name":"Weekly"}`)
	expectStatus(t, status, http.StatusOK, payload)
	if payload["name"] != "Weekly" {
		t.Fatalf("unexpected list payload %v", payload)
	}

	status, payload = api.do(http.MethodGet, "/api/spaces/"+space.ID+"/lists", carolToken, "")
	expectStatus(t, status, http.StatusOK, payload)
	if lists, _ := payload["lists"].([]any); len(lists) != 1 {
		t.Fatalf("expected one list, got %v", payload)
	}

	status, payload = api.do(http.MethodDelete, "/api/lists/"+listID, aliceToken, "")
	expectStatus(t, status, http.StatusOK, payload)
	status, payload = api.do(http.MethodGet, "/api/lists/"+listID+"/items", aliceToken, "")
	expectStatus(t, status, http.StatusNotFound, payload)
}

func TestStoreFailureMapsToServiceUnavailable(t *testing.T) {
	err := storeError("list lists", errors.New("connection refused"))
	status, code, _, details := mapError(err)
	if status != http.StatusServiceUnavailable || code != "STORE_ERROR" {
		t.Fatalf("unexpected mapping %d %s", status, code)
	}
	if op, _ := details.(map[string]any)["op"].(string); op != "list lists" {
		t.Fatalf("expected op detail, got %v", details)
	}
}

func TestUnknownRoute(t *testing.T) {
	api, svc, _ := newTestAPI(t)
	status, payload := api.do(http.MethodGet, "/api/nowhere", tokenFor(t, svc, alice), "")
	expectStatus(t, status, http.StatusNotFound, payload)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadyReportsExtraChecks(t *testing.T) {
	svc, _ := newTestService(t, Options{Checks: map[string]Pinger{
		"redis": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	}})
	api := apiClient{t: t, handler: NewHTTPServer(svc, "*").Handler()}

	status, payload := api.do(http.MethodGet, "/api/ready", "", "")
	expectStatus(t, status, http.StatusServiceUnavailable, payload)
	checks, _ := payload["checks"].(map[string]any)
	redis, _ := checks["redis"].(map[string]any)
	database, _ := checks["database"].(map[string]any)
	if redis["status"] != "error" || database["status"] != "ok" {
		t.Fatalf("unexpected checks %v", checks)
	}
}
