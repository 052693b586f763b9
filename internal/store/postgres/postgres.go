// Package postgres implements store.Store on PostgreSQL. Rows go through gorm;
// change notifications use pg_notify on writes and a pgx LISTEN loop.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/olympics-backend/internal/apperr"
	"github.com/DoyleJ11/olympics-backend/internal/model"
	"github.com/DoyleJ11/olympics-backend/internal/store"
)

const defaultTimeout = 3 * time.Second

type Store struct {
	db       *gorm.DB
	pool     *pgxpool.Pool
	notifier *notifier
	log      *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects, migrates the schema and prepares the notification listener.
// Call Listen to start delivering changes.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&model.Room{}, &model.Member{}, &model.Challenge{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	pool, err := pgxpool.New(pctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}

	log = log.Named("postgres")
	return &Store{
		db:       db,
		pool:     pool,
		notifier: newNotifier(pool, log),
		log:      log,
	}, nil
}

// Listen blocks delivering change notifications until ctx ends.
func (s *Store) Listen(ctx context.Context) error {
	return s.notifier.listen(ctx)
}

func (s *Store) Close() error {
	var err error
	if sqlDB, dbErr := s.db.DB(); dbErr != nil {
		err = multierr.Append(err, dbErr)
	} else {
		err = multierr.Append(err, sqlDB.Close())
	}
	s.pool.Close()
	return err
}

// translate maps gorm failures into the apperr taxonomy.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.Wrap(apperr.KindNotFound, op+": not found", err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(apperr.KindValidation, "already a member of this room", err)
	default:
		return apperr.Persistence(op, err)
	}
}

func (s *Store) notify(ctx context.Context, ch store.Change) {
	err := s.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", channel, encodeChange(ch)).Error
	if err != nil {
		s.log.Warn("pg_notify failed", zap.String("room_id", ch.RoomID), zap.String("table", string(ch.Table)), zap.Error(err))
	}
}

// Rooms

func (s *Store) InsertRoom(ctx context.Context, r *model.Room) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return translate("insert room", err)
	}
	s.notify(ctx, store.Change{Table: store.TableRooms, Op: store.OpInsert, RoomID: r.ID})
	return nil
}

func (s *Store) GetRoom(ctx context.Context, id string) (model.Room, error) {
	var r model.Room
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Room{}, apperr.Wrap(apperr.KindNotFound, "room not found", err)
		}
		return model.Room{}, translate("get room", err)
	}
	return r, nil
}

func (s *Store) ListRooms(ctx context.Context, status model.RoomStatus) ([]model.Room, error) {
	var rooms []model.Room
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Find(&rooms).Error
	return rooms, translate("list rooms", err)
}

func (s *Store) UpdateRoomStatus(ctx context.Context, id string, from, to model.RoomStatus) (model.Room, error) {
	res := s.db.WithContext(ctx).
		Model(&model.Room{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return model.Room{}, translate("update room status", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Room{}, apperr.New(apperr.KindNotFound, "room not found or not "+string(from))
	}
	s.notify(ctx, store.Change{Table: store.TableRooms, Op: store.OpUpdate, RoomID: id})
	return s.GetRoom(ctx, id)
}

func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&model.Challenge{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", id).Delete(&model.Member{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Room{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return translate("delete room", err)
	}
	if deleted > 0 {
		s.notify(ctx, store.Change{Table: store.TableRooms, Op: store.OpDelete, RoomID: id})
	}
	return nil
}

// Members

func (s *Store) InsertMember(ctx context.Context, m *model.Member) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return translate("insert member", err)
	}
	s.notify(ctx, store.Change{Table: store.TableMembers, Op: store.OpInsert, RoomID: m.RoomID})
	return nil
}

func (s *Store) FindMember(ctx context.Context, roomID, userID string) (model.Member, error) {
	var m model.Member
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Member{}, apperr.Wrap(apperr.KindNotFound, "membership not found", err)
	}
	return m, translate("find member", err)
}

func (s *Store) UpdateMemberRole(ctx context.Context, id string, role model.Role) (model.Member, error) {
	res := s.db.WithContext(ctx).Model(&model.Member{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return model.Member{}, translate("update member role", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Member{}, apperr.New(apperr.KindNotFound, "membership not found")
	}
	var m model.Member
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return model.Member{}, translate("get member", err)
	}
	s.notify(ctx, store.Change{Table: store.TableMembers, Op: store.OpUpdate, RoomID: m.RoomID})
	return m, nil
}

func (s *Store) DeleteMember(ctx context.Context, roomID, userID string) error {
	res := s.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&model.Member{})
	if res.Error != nil {
		return translate("delete member", res.Error)
	}
	if res.RowsAffected > 0 {
		s.notify(ctx, store.Change{Table: store.TableMembers, Op: store.OpDelete, RoomID: roomID})
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, roomID string) ([]model.Member, error) {
	var members []model.Member
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at ASC").
		Find(&members).Error
	return members, translate("list members", err)
}

func (s *Store) CountMembers(ctx context.Context, roomIDs ...string) (map[string]int, error) {
	counts := make(map[string]int, len(roomIDs))
	if len(roomIDs) == 0 {
		return counts, nil
	}
	for _, id := range roomIDs {
		counts[id] = 0
	}

	var rows []struct {
		RoomID string
		N      int
	}
	err := s.db.WithContext(ctx).
		Model(&model.Member{}).
		Select("room_id, COUNT(*) AS n").
		Where("room_id IN ?", roomIDs).
		Group("room_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translate("count members", err)
	}
	for _, r := range rows {
		counts[r.RoomID] = r.N
	}
	return counts, nil
}

// Challenges

func (s *Store) ListChallenges(ctx context.Context, roomID string) ([]model.Challenge, error) {
	var list []model.Challenge
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("sort_order ASC").
		Find(&list).Error
	return list, translate("list challenges", err)
}

func (s *Store) UpdateChallenge(ctx context.Context, id string, patch store.ChallengePatch) (model.Challenge, error) {
	updates := map[string]any{}
	if patch.Status != "" {
		updates["status"] = patch.Status
	}
	switch {
	case patch.ClearWinner:
		updates["winner_team_id"] = nil
	case patch.Winner != nil:
		updates["winner_team_id"] = *patch.Winner
	}

	var c model.Challenge
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, "id = ?", id).Error; err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&model.Challenge{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&c, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Challenge{}, apperr.Wrap(apperr.KindNotFound, "challenge not found", err)
	}
	if err != nil {
		return model.Challenge{}, translate("update challenge", err)
	}
	s.notify(ctx, store.Change{Table: store.TableChallenges, Op: store.OpUpdate, RoomID: c.RoomID})
	return c, nil
}

func (s *Store) ResetChallenges(ctx context.Context, roomID string) error {
	err := s.db.WithContext(ctx).
		Model(&model.Challenge{}).
		Where("room_id = ?", roomID).
		Updates(map[string]any{"status": model.ChallengePending, "winner_team_id": nil}).Error
	if err != nil {
		return translate("reset challenges", err)
	}
	s.notify(ctx, store.Change{Table: store.TableChallenges, Op: store.OpUpdate, RoomID: roomID})
	return nil
}

func (s *Store) ReplaceChallenges(ctx context.Context, roomID string, list []model.Challenge) error {
	rows := make([]model.Challenge, len(list))
	for i, c := range list {
		c.RoomID = roomID
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		rows[i] = c
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&model.Challenge{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return translate("replace challenges", err)
	}
	s.notify(ctx, store.Change{Table: store.TableChallenges, Op: store.OpInsert, RoomID: roomID})
	return nil
}

func (s *Store) Subscribe(ctx context.Context, table store.Table, roomID string, fn func(store.Change)) (func(), error) {
	return s.notifier.subscribe(ctx, table, roomID, fn), nil
}
