package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	kerneldomain "github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ chatdomain.GroupRepo = (*GroupRepo)(nil)

// GroupRepo persists groups, group_members, group_messages, and group_key_events.
type GroupRepo struct {
	pool *pgdb.Pool
}

// NewGroupRepo creates a GroupRepo.
func NewGroupRepo(pool *pgdb.Pool) *GroupRepo { return &GroupRepo{pool: pool} }

func (r *GroupRepo) CreateGroup(ctx context.Context, g chatdomain.Group, creator chatdomain.GroupMember) (chatdomain.Group, error) {
	ctx, span := tracer.Start(ctx, "pg.groups.create")
	defer span.End()

	tx, err := r.pool.DB.Begin(ctx)
	if err != nil {
		return chatdomain.Group{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO groups (id, name, creator_id, key_version, avatar, created_at) VALUES ($1,$2,$3,$4,NULLIF($5,''),$6)`,
		g.ID.String(), g.Name, g.CreatorID.String(), g.KeyVersion, g.Avatar, g.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.Group{}, fmt.Errorf("insert group: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO group_members (group_id, device_id, role, joined_at) VALUES ($1,$2,$3,$4)`,
		creator.GroupID.String(), creator.DeviceID.String(), string(creator.Role), creator.JoinedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.Group{}, fmt.Errorf("insert creator membership: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return chatdomain.Group{}, fmt.Errorf("commit: %w", err)
	}
	return g, nil
}

func (r *GroupRepo) FindGroup(ctx context.Context, id kerneldomain.GroupID) (chatdomain.Group, error) {
	ctx, span := tracer.Start(ctx, "pg.groups.find")
	defer span.End()

	var g chatdomain.Group
	var groupID, creatorID string
	var avatar *string
	err := r.pool.DB.QueryRow(ctx,
		`SELECT id, name, creator_id, key_version, avatar, created_at FROM groups WHERE id = $1`, id.String(),
	).Scan(&groupID, &g.Name, &creatorID, &g.KeyVersion, &avatar, &g.CreatedAt)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return chatdomain.Group{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.Group{}, fmt.Errorf("find group: %w", err)
	}
	g.ID = kerneldomain.MustGroupID(groupID)
	g.CreatorID = kerneldomain.MustDeviceID(creatorID)
	if avatar != nil {
		g.Avatar = *avatar
	}
	return g, nil
}

func (r *GroupRepo) FindMember(ctx context.Context, groupID kerneldomain.GroupID, deviceID kerneldomain.DeviceID) (chatdomain.GroupMember, error) {
	ctx, span := tracer.Start(ctx, "pg.groups.find_member")
	defer span.End()

	m := chatdomain.GroupMember{GroupID: groupID, DeviceID: deviceID}
	var role string
	err := r.pool.DB.QueryRow(ctx,
		`SELECT role, joined_at FROM group_members WHERE group_id = $1 AND device_id = $2`,
		groupID.String(), deviceID.String(),
	).Scan(&role, &m.JoinedAt)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return chatdomain.GroupMember{}, fmt.Errorf("membership not found: %w", kerneldomain.ErrNotMember)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.GroupMember{}, fmt.Errorf("find group member: %w", err)
	}
	m.Role = kerneldomain.GroupRole(role)
	return m, nil
}

func (r *GroupRepo) ListMembers(ctx context.Context, groupID kerneldomain.GroupID) ([]chatdomain.GroupMember, error) {
	ctx, span := tracer.Start(ctx, "pg.groups.list_members")
	defer span.End()

	rows, err := r.pool.DB.Query(ctx,
		`SELECT device_id, role, joined_at FROM group_members WHERE group_id = $1`, groupID.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list group members: %w", err)
	}
	defer rows.Close()

	var out []chatdomain.GroupMember
	for rows.Next() {
		var deviceID, role string
		m := chatdomain.GroupMember{GroupID: groupID}
		if err := rows.Scan(&deviceID, &role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan group member row: %w", err)
		}
		m.DeviceID = kerneldomain.MustDeviceID(deviceID)
		m.Role = kerneldomain.GroupRole(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group member rows: %w", err)
	}
	return out, nil
}

func (r *GroupRepo) UpdateGroup(ctx context.Context, g chatdomain.Group) error {
	ctx, span := tracer.Start(ctx, "pg.groups.update")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`UPDATE groups SET name = $1, avatar = NULLIF($2,'') WHERE id = $3`, g.Name, g.Avatar, g.ID.String(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update group: %w", err)
	}
	return nil
}

func (r *GroupRepo) SetMemberRole(ctx context.Context, groupID kerneldomain.GroupID, deviceID kerneldomain.DeviceID, role kerneldomain.GroupRole) error {
	ctx, span := tracer.Start(ctx, "pg.groups.set_member_role")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`UPDATE group_members SET role = $1 WHERE group_id = $2 AND device_id = $3`,
		string(role), groupID.String(), deviceID.String(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("set member role: %w", err)
	}
	return nil
}

func (r *GroupRepo) AddMember(ctx context.Context, m chatdomain.GroupMember) error {
	ctx, span := tracer.Start(ctx, "pg.groups.add_member")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO group_members (group_id, device_id, role, joined_at) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (group_id, device_id) DO NOTHING`,
		m.GroupID.String(), m.DeviceID.String(), string(m.Role), m.JoinedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

// RemoveMember deletes the membership row; if no members remain, cascades
// to delete the group and its messages/key events/prefs; if the removed
// member was the last admin and members remain, promotes an arbitrary
// remaining member to admin. All in one transaction.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID kerneldomain.GroupID, deviceID kerneldomain.DeviceID) error {
	ctx, span := tracer.Start(ctx, "pg.groups.remove_member")
	defer span.End()

	tx, err := r.pool.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND device_id = $2`, groupID.String(), deviceID.String(),
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("delete membership: %w", err)
	}

	var remaining int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM group_members WHERE group_id = $1`, groupID.String()).Scan(&remaining); err != nil {
		return fmt.Errorf("count remaining members: %w", err)
	}

	if remaining == 0 {
		for _, stmt := range []string{
			`DELETE FROM group_key_events WHERE group_id = $1`,
			`DELETE FROM group_prefs WHERE group_id = $1`,
			`DELETE FROM group_messages WHERE group_id = $1`,
			`DELETE FROM groups WHERE id = $1`,
		} {
			if _, err := tx.Exec(ctx, stmt, groupID.String()); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return fmt.Errorf("cascade delete empty group: %w", err)
			}
		}
		return commitTx(ctx, tx)
	}

	var adminCount int
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM group_members WHERE group_id = $1 AND role = $2`,
		groupID.String(), string(kerneldomain.GroupRoleAdmin),
	).Scan(&adminCount); err != nil {
		return fmt.Errorf("count remaining admins: %w", err)
	}
	if adminCount == 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE group_members SET role = $1
			 WHERE group_id = $2 AND device_id = (
			   SELECT device_id FROM group_members WHERE group_id = $2 ORDER BY joined_at ASC LIMIT 1
			 )`, string(kerneldomain.GroupRoleAdmin), groupID.String(),
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("auto-promote admin: %w", err)
		}
	}
	return commitTx(ctx, tx)
}

func commitTx(ctx context.Context, tx pgdb.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *GroupRepo) RecordKeyEvent(ctx context.Context, ev chatdomain.GroupKeyEvent) error {
	ctx, span := tracer.Start(ctx, "pg.groups.record_key_event")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO group_key_events (group_id, version, actor_id, key_fp, created_at) VALUES ($1,$2,$3,NULLIF($4,''),$5)`,
		ev.GroupID.String(), ev.Version, ev.ActorID.String(), ev.KeyFP, ev.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("record group key event: %w", err)
	}
	return nil
}

func (r *GroupRepo) BumpKeyVersion(ctx context.Context, groupID kerneldomain.GroupID) (int, error) {
	ctx, span := tracer.Start(ctx, "pg.groups.bump_key_version")
	defer span.End()

	var version int
	err := r.pool.DB.QueryRow(ctx,
		`UPDATE groups SET key_version = key_version + 1 WHERE id = $1 RETURNING key_version`, groupID.String(),
	).Scan(&version)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("bump key version: %w", err)
	}
	return version, nil
}
