package ledger

// commitScript is the single mutation choke point for tenant balances.
// It re-checks the external-reference marker, compares the account
// version, then writes the updated account hash, the entry hashes, the
// per-tenant entry list and the reference marker in one atomic step.
//
// KEYS[1] account hash
// KEYS[2] tenant entry list
// KEYS[3] external-reference marker (account key repeated when unused)
// KEYS[4..] entry hashes, one per ARGV entry
// ARGV[1] expected account version
// ARGV[2] "1" when an external reference is claimed
// ARGV[3] entry id stored at the reference marker
// ARGV[4] account fields (JSON object of strings)
// ARGV[5..] entry fields (JSON objects of strings), matching KEYS[4..]
const commitScript = `
if ARGV[2] == "1" and redis.call("EXISTS", KEYS[3]) == 1 then
  return "DUPLICATE"
end
local current = redis.call("HGET", KEYS[1], "version")
if not current then
  return "MISSING"
end
if current ~= ARGV[1] then
  return "CONFLICT:" .. current
end
local acc = cjson.decode(ARGV[4])
for field, value in pairs(acc) do
  redis.call("HSET", KEYS[1], field, value)
end
for i = 5, #ARGV do
  local entry = cjson.decode(ARGV[i])
  local key = KEYS[i - 1]
  for field, value in pairs(entry) do
    redis.call("HSET", key, field, value)
  end
  redis.call("RPUSH", KEYS[2], entry.id)
end
if ARGV[2] == "1" then
  redis.call("SET", KEYS[3], ARGV[3])
end
return "OK"
`

// createScript writes a new account plus its initial allocation entries,
// failing if the account hash already exists.
//
// KEYS[1] account hash
// KEYS[2] tenant entry list
// KEYS[3..] entry hashes
// ARGV[1] account fields (JSON)
// ARGV[2..] entry fields (JSON), matching KEYS[3..]
const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return "EXISTS"
end
local acc = cjson.decode(ARGV[1])
for field, value in pairs(acc) do
  redis.call("HSET", KEYS[1], field, value)
end
for i = 2, #ARGV do
  local entry = cjson.decode(ARGV[i])
  local key = KEYS[i + 1]
  for field, value in pairs(entry) do
    redis.call("HSET", key, field, value)
  end
  redis.call("RPUSH", KEYS[2], entry.id)
end
return "OK"
`

// appendScript records an entry that does not touch any balance, such as
// untracked usage for tenants without a ledger record.
//
// KEYS[1] entry hash
// KEYS[2] tenant entry list
// ARGV[1] entry fields (JSON)
const appendScript = `
local entry = cjson.decode(ARGV[1])
for field, value in pairs(entry) do
  redis.call("HSET", KEYS[1], field, value)
end
redis.call("RPUSH", KEYS[2], entry.id)
return "OK"
`
