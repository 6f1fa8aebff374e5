package domain

// KeyPrefix namespaces every key this service writes to the kv store.
const KeyPrefix = "taxotag:"
