package domain

import (
	"strings"
	"time"
)

// Organization — граница арендатора. Все сущности принадлежат ровно одной организации.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    *string   `json:"domain"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DomainFromEmail возвращает часть адреса после '@' (nil, если её нет).
func DomainFromEmail(email string) *string {
	_, host, ok := strings.Cut(email, "@")
	if !ok || host == "" {
		return nil
	}
	host = strings.ToLower(host)
	return &host
}
