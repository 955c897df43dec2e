package redis

import goredis "github.com/redis/go-redis/v9"

// rangeReadScript removes index entries below the range start and reads the
// range in one atomic step.
//
// KEYS[1]  index key
// ARGV[1]  range start (inclusive); everything below it is removed
// ARGV[2]  range end (inclusive)
// ARGV[3]  record key prefix, "{prefix}rec:{device}:"
// ARGV[4+] requested fields
//
// The reply is flat: the number of removed entries, then for each row the
// timestamp followed by one value per requested field, nil where the field
// is absent. Index entries whose record already expired are removed and left
// out of the reply.
var rangeReadScript = goredis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
for _, ts in ipairs(expired) do
  redis.call('DEL', ARGV[3] .. ts)
end
if #expired > 0 then
  redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
end

local fields = {'timestamp'}
for i = 4, #ARGV do
  fields[#fields + 1] = ARGV[i]
end

local out = {#expired}
local members = redis.call('ZRANGEBYSCORE', KEYS[1], ARGV[1], ARGV[2])
for _, ts in ipairs(members) do
  local vals = redis.call('HMGET', ARGV[3] .. ts, unpack(fields))
  if vals[1] then
    out[#out + 1] = ts
    for i = 2, #vals do
      out[#out + 1] = vals[i]
    end
  else
    redis.call('ZREM', KEYS[1], ts)
  end
end
return out
`)

// evictScript removes index entries below a threshold together with their
// record hashes and returns how many entries it removed.
//
// KEYS[1]  index key
// ARGV[1]  eviction threshold (exclusive)
// ARGV[2]  record key prefix, "{prefix}rec:{device}:"
var evictScript = goredis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
for _, ts in ipairs(expired) do
  redis.call('DEL', ARGV[2] .. ts)
end
if #expired > 0 then
  redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
end
return #expired
`)
