package httpdto

type CreateGroupRequest struct {
	Name    string   `json:"name" binding:"required"`
	Members []string `json:"members"`
}

type AddMembersRequest struct {
	Members []string `json:"members" binding:"required"`
}

type KickRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type CreateDirectRequest struct {
	PeerID string `json:"peer_id" binding:"required"`
}

type SetAvatarRequest struct {
	AvatarKey string `json:"avatar_key"`
}

type MarkReadRequest struct {
	Read bool `json:"read"`
}

type DeleteGroupResponse struct {
	Notified []string `json:"notified"`
}
