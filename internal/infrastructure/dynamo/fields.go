package dynamo

// DynamoDB attribute names used in update expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldEnable           = "enable"
	fieldRefreshToken     = "refresh_token"
	fieldRefreshExpiresAt = "refresh_expires_at"
	fieldPasswordHash     = "password_hash"
	fieldLastAccessedAt   = "last_accessed_at"
	fieldSoftDeleted      = "soft_deleted"
	fieldUpdatedAt        = "updated_at"
)
