package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"edupulse-backend/internal/models"
	"edupulse-backend/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// subscription is one observer connection with its delivery filter.
// writes are serialized by mu; failed marks it for the next prune pass.
type subscription struct {
	id       uuid.UUID
	userID   uuid.UUID
	tenantID uuid.UUID
	courseID string // empty = all courses in tenant
	role     string
	conn     *websocket.Conn

	mu     sync.Mutex
	failed bool
}

func (s *subscription) send(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// Slow or gone: never retry synchronously, just mark for pruning.
		s.failed = true
	}
}

// matchesStruggle filters struggle events to instructor-side observers
// watching the right course.
func (s *subscription) matchesStruggle(tenantID, courseID string) bool {
	if s.role != "instructor" && s.role != "admin" {
		return false
	}
	if s.tenantID.String() != tenantID {
		return false
	}
	return s.courseID == "" || courseID == "" || s.courseID == courseID
}

// Hub fans struggle events out to subscribed dashboards and delivers
// interventions to learner connections. Cross-instance fan-in rides on
// a per-tenant redis pub/sub channel.
type Hub struct {
	mu          sync.RWMutex
	subs        map[uuid.UUID]*subscription
	redisClient *redis.Client
	jwtSecret   []byte
	cancelFuncs map[string]context.CancelFunc // per tenant channel
	tenantSubs  map[string]int
}

func NewHub(redisClient *redis.Client, jwtSecret string) *Hub {
	return &Hub{
		subs:        make(map[uuid.UUID]*subscription),
		redisClient: redisClient,
		jwtSecret:   []byte(jwtSecret),
		cancelFuncs: make(map[string]context.CancelFunc),
		tenantSubs:  make(map[string]int),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userIDStr, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	tenantIDStr, _ := claims["tenant_id"].(string)
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = "student"
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	sub := &subscription{
		id:       uuid.New(),
		userID:   userID,
		tenantID: tenantID,
		courseID: r.URL.Query().Get("course_id"),
		role:     role,
		conn:     conn,
	}
	h.register(sub)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregister(sub)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) register(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subs[sub.id] = sub

	tenant := sub.tenantID.String()
	h.tenantSubs[tenant]++
	if h.tenantSubs[tenant] == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[tenant] = cancel
		go h.subscribeToPubSub(ctx, tenant)
	}

	log.Printf("Observer connected: user %s role %s (tenant %s, course %q)", sub.userID, sub.role, tenant, sub.courseID)
}

func (h *Hub) unregister(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub.conn.Close()
	if _, ok := h.subs[sub.id]; !ok {
		return
	}
	delete(h.subs, sub.id)

	tenant := sub.tenantID.String()
	h.tenantSubs[tenant]--
	if h.tenantSubs[tenant] <= 0 {
		delete(h.tenantSubs, tenant)
		if cancel, ok := h.cancelFuncs[tenant]; ok {
			cancel()
			delete(h.cancelFuncs, tenant)
		}
	}

	log.Printf("Observer disconnected: user %s", sub.userID)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, tenant string) {
	channel := "struggle_events:" + tenant
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.deliverStruggle(tenant, []byte(msg.Payload))
		}
	}
}

// BroadcastStruggle publishes to the tenant channel so every instance's
// hub (this one included) fans it out. If redis is unavailable the event
// is still delivered to local observers: fan-out is best-effort, not
// durable.
func (h *Hub) BroadcastStruggle(event session.StruggleBroadcast) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.redisClient.Publish(ctx, "struggle_events:"+event.Data.TenantID, data).Err(); err != nil {
		log.Printf("Struggle broadcast publish failed, delivering locally: %v", err)
		h.deliverStruggle(event.Data.TenantID, data)
	}
}

func (h *Hub) deliverStruggle(tenant string, data []byte) {
	var event session.StruggleBroadcast
	if err := json.Unmarshal(data, &event); err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*subscription, 0)
	for _, sub := range h.subs {
		if sub.matchesStruggle(tenant, event.Data.CourseID) {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.send(data)
	}

	h.prune()
}

// Deliver implements the intervention delivery channel: the message goes
// to the learner's own connections. No connection means the intervention
// stays undelivered and the dispatcher leaves delivered_at unset.
func (h *Hub) Deliver(record models.InterventionRecord) error {
	payload, err := json.Marshal(map[string]interface{}{
		"type": "intervention",
		"data": record,
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*subscription, 0)
	for _, sub := range h.subs {
		if sub.userID == record.UserID && sub.tenantID == record.TenantID {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return errors.New("learner has no active connection")
	}

	delivered := false
	for _, sub := range targets {
		sub.send(payload)
		sub.mu.Lock()
		if !sub.failed {
			delivered = true
		}
		sub.mu.Unlock()
	}

	h.prune()

	if !delivered {
		return errors.New("all learner connections failed")
	}
	return nil
}

// prune drops subscriptions whose writes have failed. Safe to run
// concurrently with sends; a pruned subscription just stops receiving.
func (h *Hub) prune() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		sub.mu.Lock()
		failed := sub.failed
		sub.mu.Unlock()
		if !failed {
			continue
		}

		sub.conn.Close()
		delete(h.subs, id)

		tenant := sub.tenantID.String()
		h.tenantSubs[tenant]--
		if h.tenantSubs[tenant] <= 0 {
			delete(h.tenantSubs, tenant)
			if cancel, ok := h.cancelFuncs[tenant]; ok {
				cancel()
				delete(h.cancelFuncs, tenant)
			}
		}
	}
}

// SubscriberCount reports active observer connections.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
