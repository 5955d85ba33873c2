package buzzer

import "github.com/redis/go-redis/v9"

// buzzScript is the whole buzz transaction. It sees a consistent snapshot
// of all four keys; no two buzzes on the same game can interleave.
//
// KEYS: buzzer hash, order list, attempted set, cooldowns hash.
// ARGV: seat, now (wall-clock seconds, float), client token,
//       server timestamp (µs), cooldown window (seconds), ttl (seconds).
//
// Reply: {accepted, position, winner, cooldown, remaining}. Remaining is a
// string: a float returned as a Lua number would be truncated to an integer.
var buzzScript = redis.NewScript(`
local buzzer = KEYS[1]
local order = KEYS[2]
local attempted = KEYS[3]
local cooldowns = KEYS[4]

local seat = ARGV[1]
local now = tonumber(ARGV[2])
local token = ARGV[3]
local stamp = ARGV[4]
local window = tonumber(ARGV[5])
local ttl = tonumber(ARGV[6])

-- Seat already attempted this clue: hard reject, cooldown untouched.
if redis.call('SISMEMBER', attempted, seat) == 1 then
	return {0, -3, 0, 0, '0'}
end

-- Active cooldown: reject without resetting the timer.
local last = tonumber(redis.call('HGET', cooldowns, seat))
if last then
	local elapsed = now - last
	if elapsed < window then
		return {0, -2, 0, 1, tostring(window - elapsed)}
	end
end

local count = tonumber(redis.call('HGET', buzzer, 'count')) or 0
local locked = redis.call('HGET', buzzer, 'locked')

-- Premature buzz: locked with no buzzes recorded means the host has not
-- enabled the buzzer yet. Locked with buzzes on it means a winner exists;
-- later valid buzzes are still recorded for the on-screen order.
if locked == '1' and count == 0 then
	redis.call('HSET', cooldowns, seat, ARGV[2])
	redis.call('EXPIRE', cooldowns, ttl)
	return {0, -1, 0, 1, tostring(window)}
end

-- Token gate: a buzz minted against an older enable is stale. A session
-- with no server token at all predates the token protocol and accepts.
local want = redis.call('HGET', buzzer, 'unlock_token')
if want and want ~= '' and token ~= want then
	redis.call('HSET', cooldowns, seat, ARGV[2])
	redis.call('EXPIRE', cooldowns, ttl)
	return {0, -1, 0, 1, tostring(window)}
end

-- One recorded buzz per seat per clue.
if redis.call('HEXISTS', buzzer, 'player_' .. seat) == 1 then
	local winner = tonumber(redis.call('HGET', buzzer, 'winner')) or 0
	return {0, -1, winner, 0, '0'}
end

count = redis.call('HINCRBY', buzzer, 'count', 1)
redis.call('RPUSH', order, seat)
redis.call('HSET', buzzer, 'player_' .. seat, stamp)
redis.call('HSET', cooldowns, seat, ARGV[2])

local winner
if count == 1 then
	redis.call('HSET', buzzer, 'locked', '1', 'winner', seat)
	winner = tonumber(seat)
else
	winner = tonumber(redis.call('HGET', buzzer, 'winner')) or 0
end

redis.call('EXPIRE', buzzer, ttl)
redis.call('EXPIRE', order, ttl)
redis.call('EXPIRE', cooldowns, ttl)

return {1, count, winner, 0, '0'}
`)

// enableScript unlocks the buzzer under a fresh token. The token never
// goes backwards: if the stored one is at or ahead of the wall clock, the
// new token is stored+1. Formatting goes through %.0f because tostring
// renders large integers in scientific notation.
//
// KEYS: buzzer hash. ARGV: candidate token (µs), ttl. Reply: the token.
var enableScript = redis.NewScript(`
local buzzer = KEYS[1]
local token = ARGV[1]

local prev = redis.call('HGET', buzzer, 'unlock_token')
if prev and tonumber(prev) >= tonumber(token) then
	token = string.format('%.0f', tonumber(prev) + 1)
end

redis.call('HSET', buzzer, 'unlock_token', token, 'locked', '0')
redis.call('EXPIRE', buzzer, tonumber(ARGV[2]))
return token
`)

// clearRetryScript wipes the buzz records and re-enables under a fresh
// token in one step, so no buzz can slip in between the clear and the
// unlock. The attempted set survives: a judged-wrong seat stays out.
//
// KEYS: buzzer hash, order list. ARGV: candidate token (µs), ttl.
// Reply: the token.
var clearRetryScript = redis.NewScript(`
local buzzer = KEYS[1]
local token = ARGV[1]

local prev = redis.call('HGET', buzzer, 'unlock_token')
if prev and tonumber(prev) >= tonumber(token) then
	token = string.format('%.0f', tonumber(prev) + 1)
end

redis.call('DEL', buzzer, KEYS[2])
redis.call('HSET', buzzer, 'unlock_token', token, 'locked', '0')
redis.call('EXPIRE', buzzer, tonumber(ARGV[2]))
return token
`)

// resetScript clears all per-clue buzz state and leaves the buzzer locked,
// which is its idle posture between clues.
//
// KEYS: buzzer hash, order list, attempted set. ARGV: ttl.
var resetScript = redis.NewScript(`
redis.call('DEL', KEYS[1], KEYS[2], KEYS[3])
redis.call('HSET', KEYS[1], 'locked', '1')
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[1]))
return 1
`)
