package registry

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// Redis is a Registry kept in Redis so that several server nodes share one
// seat map and holds survive a restart.  Each seat is a hash
// {status,user,exp,seq,tier}; each transition runs as one Lua script, which
// Redis executes atomically.
//
// Keys:
//  <prefix>:shows                  – set of provisioned show IDs
//  <prefix>:show:<id>:seq          – show-wide commit counter
//  <prefix>:show:<id>:seats        – set of seat IDs
//  <prefix>:show:<id>:seat:<seat>  – seat hash
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedis returns a Redis-backed registry.  An empty prefix defaults to "seats".
func NewRedis(rdb redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "seats"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) showsKey() string             { return r.prefix + ":shows" }
func (r *Redis) seqKey(showID int64) string   { return fmt.Sprintf("%s:show:%d:seq", r.prefix, showID) }
func (r *Redis) seatsKey(showID int64) string { return fmt.Sprintf("%s:show:%d:seats", r.prefix, showID) }
func (r *Redis) seatKey(showID int64, seatID string) string {
	return fmt.Sprintf("%s:show:%d:seat:%s", r.prefix, showID, seatID)
}

// Every script answers {code, ...}: code -1 means the seat hash is missing,
// 0 a conflict followed by its reason, 1 success followed by the new seq.

var holdScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then return {-1} end
	local h = redis.call('HMGET', KEYS[1], 'status', 'tier')
	if h[1] == 'HELD' then return {0, 'held'} end
	if h[1] == 'BOOKED' then return {0, 'booked'} end
	local seq = redis.call('INCR', KEYS[2])
	redis.call('HSET', KEYS[1], 'status', 'HELD', 'user', ARGV[1], 'exp', ARGV[2], 'seq', seq)
	return {1, seq, h[2] or ''}
`)

var releaseScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then return {-1} end
	local h = redis.call('HMGET', KEYS[1], 'status', 'user', 'tier')
	if h[1] == 'AVAILABLE' then return {0, 'not_held'} end
	if h[1] == 'BOOKED' then return {0, 'booked'} end
	if h[2] ~= ARGV[1] then return {0, 'not_holder'} end
	local seq = redis.call('INCR', KEYS[2])
	redis.call('HSET', KEYS[1], 'status', 'AVAILABLE', 'seq', seq)
	redis.call('HDEL', KEYS[1], 'user', 'exp')
	return {1, seq, h[3] or ''}
`)

// KEYS[1] is the seq counter, KEYS[2..] the seat hashes.  Conflicts report
// the zero-based index of the offending seat.
var bookScript = redis.NewScript(`
	for i = 2, #KEYS do
		if redis.call('EXISTS', KEYS[i]) == 0 then return {-1, i - 2} end
		local h = redis.call('HMGET', KEYS[i], 'status', 'user', 'exp')
		if h[1] == 'AVAILABLE' then return {0, 'not_held', i - 2} end
		if h[1] == 'BOOKED' then return {0, 'booked', i - 2} end
		if h[2] ~= ARGV[1] then return {0, 'not_holder', i - 2} end
		if tonumber(h[3]) <= tonumber(ARGV[2]) then return {0, 'expired', i - 2} end
	end
	local seq = redis.call('INCR', KEYS[1])
	local out = {1, seq}
	for i = 2, #KEYS do
		redis.call('HSET', KEYS[i], 'status', 'BOOKED', 'seq', seq)
		redis.call('HDEL', KEYS[i], 'exp')
		out[#out + 1] = redis.call('HGET', KEYS[i], 'tier') or ''
	end
	return out
`)

var expireScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then return {-1} end
	local h = redis.call('HMGET', KEYS[1], 'status', 'seq', 'exp', 'tier')
	if h[1] ~= 'HELD' or h[2] ~= ARGV[1] then return {0, 'superseded'} end
	if tonumber(h[3]) > tonumber(ARGV[2]) then return {0, 'not_due'} end
	local seq = redis.call('INCR', KEYS[2])
	redis.call('HSET', KEYS[1], 'status', 'AVAILABLE', 'seq', seq)
	redis.call('HDEL', KEYS[1], 'user', 'exp')
	return {1, seq, h[4] or ''}
`)

// Provision implements Registry.
func (r *Redis) Provision(ctx context.Context, showID int64, seats []model.Seat) error {
	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, r.showsKey(), showID)
	for _, s := range seats {
		key := r.seatKey(showID, s.ID)
		pipe.HSetNX(ctx, key, "status", string(model.StatusAvailable))
		pipe.HSetNX(ctx, key, "seq", 0)
		pipe.HSetNX(ctx, key, "tier", s.Tier)
		pipe.SAdd(ctx, r.seatsKey(showID), s.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("provision show %d: %w", showID, err)
	}
	return nil
}

// Shows implements Registry.
func (r *Redis) Shows(ctx context.Context) ([]int64, error) {
	members, err := r.rdb.SMembers(ctx, r.showsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list shows: %w", err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Snapshot implements Registry.  The sequence counter is read before the
// seats, so every commit at or below the returned Seq is visible in Seats.
func (r *Redis) Snapshot(ctx context.Context, showID int64) (model.Snapshot, error) {
	known, err := r.rdb.SIsMember(ctx, r.showsKey(), showID).Result()
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot show %d: %w", showID, err)
	}
	if !known {
		return model.Snapshot{}, &model.NotFoundError{ShowID: showID}
	}
	seq, err := r.rdb.Get(ctx, r.seqKey(showID)).Uint64()
	if err != nil && err != redis.Nil {
		return model.Snapshot{}, fmt.Errorf("snapshot show %d: %w", showID, err)
	}
	ids, err := r.rdb.SMembers(ctx, r.seatsKey(showID)).Result()
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot show %d: %w", showID, err)
	}
	sort.Strings(ids)
	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.seatKey(showID, id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return model.Snapshot{}, fmt.Errorf("snapshot show %d: %w", showID, err)
		}
	}
	out := model.Snapshot{ShowID: showID, Seq: seq, Seats: make([]model.SeatState, 0, len(ids))}
	for i, id := range ids {
		out.Seats = append(out.Seats, decodeSeat(id, cmds[i].Val()))
	}
	return out, nil
}

func decodeSeat(seatID string, h map[string]string) model.SeatState {
	st := model.SeatState{
		SeatID: seatID,
		Tier:   h["tier"],
		Status: model.SeatStatus(h["status"]),
		UserID: h["user"],
	}
	if exp, err := strconv.ParseInt(h["exp"], 10, 64); err == nil {
		st.ExpiresAt = model.UnixMillis(exp)
	}
	if seq, err := strconv.ParseUint(h["seq"], 10, 64); err == nil {
		st.Seq = seq
	}
	return st
}

// Hold implements Registry.
func (r *Redis) Hold(ctx context.Context, showID int64, seatID, userID string, expiresAt time.Time) (model.SeatState, error) {
	exp := model.At(expiresAt)
	res, err := holdScript.Run(ctx, r.rdb, []string{r.seatKey(showID, seatID), r.seqKey(showID)}, userID, int64(exp)).Slice()
	if err != nil {
		return model.SeatState{}, fmt.Errorf("hold %d/%s: %w", showID, seatID, err)
	}
	seq, tier, err := scriptOutcome(res, showID, seatID)
	if err != nil {
		return model.SeatState{}, err
	}
	return model.SeatState{SeatID: seatID, Tier: tier, Status: model.StatusHeld, UserID: userID, ExpiresAt: exp, Seq: seq}, nil
}

// Release implements Registry.
func (r *Redis) Release(ctx context.Context, showID int64, seatID, userID string) (model.SeatState, error) {
	res, err := releaseScript.Run(ctx, r.rdb, []string{r.seatKey(showID, seatID), r.seqKey(showID)}, userID).Slice()
	if err != nil {
		return model.SeatState{}, fmt.Errorf("release %d/%s: %w", showID, seatID, err)
	}
	seq, tier, err := scriptOutcome(res, showID, seatID)
	if err != nil {
		return model.SeatState{}, err
	}
	return model.SeatState{SeatID: seatID, Tier: tier, Status: model.StatusAvailable, Seq: seq}, nil
}

// Book implements Registry.
func (r *Redis) Book(ctx context.Context, showID int64, seatIDs []string, userID string, now time.Time) ([]model.SeatState, error) {
	keys := make([]string, 0, len(seatIDs)+1)
	keys = append(keys, r.seqKey(showID))
	for _, id := range seatIDs {
		keys = append(keys, r.seatKey(showID, id))
	}
	res, err := bookScript.Run(ctx, r.rdb, keys, userID, now.UnixMilli()).Slice()
	if err != nil {
		return nil, fmt.Errorf("book %d: %w", showID, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("book %d: empty script result", showID)
	}
	switch asInt64(res[0]) {
	case -1:
		return nil, &model.NotFoundError{ShowID: showID, SeatID: seatAt(seatIDs, res, 1)}
	case 0:
		return nil, &model.ConflictError{SeatID: seatAt(seatIDs, res, 2), Reason: asString(res, 1)}
	}
	seq := uint64(asInt64(res[1]))
	out := make([]model.SeatState, 0, len(seatIDs))
	for i, id := range seatIDs {
		out = append(out, model.SeatState{SeatID: id, Tier: asString(res, i+2), Status: model.StatusBooked, UserID: userID, Seq: seq})
	}
	return out, nil
}

// Expire implements Registry.
func (r *Redis) Expire(ctx context.Context, showID int64, seatID string, seq uint64, now time.Time) (model.SeatState, bool, error) {
	res, err := expireScript.Run(ctx, r.rdb, []string{r.seatKey(showID, seatID), r.seqKey(showID)}, strconv.FormatUint(seq, 10), now.UnixMilli()).Slice()
	if err != nil {
		return model.SeatState{}, false, fmt.Errorf("expire %d/%s: %w", showID, seatID, err)
	}
	if len(res) > 0 && asInt64(res[0]) == 0 {
		return model.SeatState{}, false, nil
	}
	next, tier, err := scriptOutcome(res, showID, seatID)
	if err != nil {
		return model.SeatState{}, false, err
	}
	return model.SeatState{SeatID: seatID, Tier: tier, Status: model.StatusAvailable, Seq: next}, true, nil
}

// scriptOutcome decodes the {code, seq|reason, tier} reply shared by the
// single-seat scripts.
func scriptOutcome(res []interface{}, showID int64, seatID string) (uint64, string, error) {
	if len(res) == 0 {
		return 0, "", fmt.Errorf("seat %d/%s: empty script result", showID, seatID)
	}
	switch asInt64(res[0]) {
	case -1:
		return 0, "", &model.NotFoundError{ShowID: showID, SeatID: seatID}
	case 0:
		return 0, "", &model.ConflictError{SeatID: seatID, Reason: asString(res, 1)}
	}
	if len(res) < 2 {
		return 0, "", fmt.Errorf("seat %d/%s: short script result", showID, seatID)
	}
	return uint64(asInt64(res[1])), asString(res, 2), nil
}

func seatAt(seatIDs []string, res []interface{}, idx int) string {
	if idx >= len(res) {
		return ""
	}
	i := int(asInt64(res[idx]))
	if i < 0 || i >= len(seatIDs) {
		return ""
	}
	return seatIDs[i]
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

func asString(res []interface{}, idx int) string {
	if idx >= len(res) {
		return ""
	}
	if s, ok := res[idx].(string); ok {
		return s
	}
	return ""
}
