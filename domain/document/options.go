package document

import "github.com/cavepedia/cavepedia/domain/repository"

// WithBucket filters by the "bucket" column.
func WithBucket(bucket string) repository.Option {
	return repository.WithCondition("bucket", bucket)
}

// WithKey filters by the "key" column.
func WithKey(key string) repository.Option {
	return repository.WithCondition("key", key)
}

// WithKeyPrefix filters keys starting with prefix.
func WithKeyPrefix(prefix string) repository.Option {
	return repository.WithPrefix("key", prefix)
}

// WithSplit filters documents by their split flag.
func WithSplit(split bool) repository.Option {
	return repository.WithCondition("split", split)
}

// WithRoles filters units readable by any of roles.
func WithRoles(roles []string) repository.Option {
	return repository.WithConditionIn("role", roles)
}

// WithState filters units by lifecycle state.
func WithState(state State) repository.Option {
	switch state {
	case StatePending:
		return repository.WithNull("content")
	case StateClaimed:
		return repository.WithCondition("content", ContentClaimed)
	case StateFailed:
		return repository.WithCondition("content", ContentFailed)
	default:
		return func(q repository.Query) repository.Query {
			q = repository.WithNotNull("content")(q)
			return repository.WithConditionNotIn("content", Sentinels())(q)
		}
	}
}

// WithEmbedded filters units by whether they carry a vector.
func WithEmbedded(embedded bool) repository.Option {
	if embedded {
		return repository.WithNotNull("embedding")
	}
	return repository.WithNull("embedding")
}

// WithDone filters batches by their done flag.
func WithDone(done bool) repository.Option {
	return repository.WithCondition("done", done)
}

// WithIDAfter filters rows with an id greater than id, for keyset paging.
func WithIDAfter(id int64) repository.Option {
	return repository.WithGreaterThan("id", id)
}
