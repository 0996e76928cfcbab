package client

import (
	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/models/dto"
	"github.com/hongminglow/cuecast-be/internal/rbac"
)

func sessionFor(account models.Account) dto.SessionResponse {
	return dto.SessionResponse{
		Token:       "token-" + account.ID,
		Account:     account,
		Permissions: rbac.EffectivePermissions(&account).Sorted(),
	}
}
