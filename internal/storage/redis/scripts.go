package redis

const (
	// deleteUserScript atomically removes every trace of a user from the
	// running week: open session, all seven weekday buckets, exclusion flag.
	deleteUserScript = `
local sessions_key = KEYS[1]    -- weekwatch:sessions:open
local exclusions_key = KEYS[2]  -- weekwatch:exclusions

local user_id = ARGV[1]
local usage_prefix = ARGV[2]    -- weekwatch:usage:day:

redis.call('HDEL', sessions_key, user_id)
redis.call('SREM', exclusions_key, user_id)

for weekday = 0, 6 do
  redis.call('HDEL', usage_prefix .. weekday, user_id)
end

return 'OK'
`

	// resetWeekScript atomically clears the weekday buckets and the
	// exclusion set while leaving open sessions in place.
	resetWeekScript = `
local exclusions_key = KEYS[1]  -- weekwatch:exclusions

local usage_prefix = ARGV[1]    -- weekwatch:usage:day:

redis.call('DEL', exclusions_key)

for weekday = 0, 6 do
  redis.call('DEL', usage_prefix .. weekday)
end

return 'OK'
`
)
