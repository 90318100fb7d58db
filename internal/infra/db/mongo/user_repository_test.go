package mongo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	domainuser "chatlink/internal/domain/user"
)

func dupKeyMessage(index, field, value string) error {
	return fmt.Errorf("write exception: write errors: [E11000 duplicate key error collection: chatlink.users index: %s dup key: { %s: %q }]", index, field, value)
}

func TestDuplicateUserErrorMatchesIndexName(t *testing.T) {
	err := duplicateUserError(dupKeyMessage(usernameIndexName, "username", "alice"))
	require.ErrorIs(t, err, domainuser.ErrUsernameTaken)

	err = duplicateUserError(dupKeyMessage(emailIndexName, "email", "alice@example.com"))
	require.ErrorIs(t, err, domainuser.ErrEmailAlreadyUsed)
}

func TestDuplicateUserErrorIgnoresFieldValues(t *testing.T) {
	// A username that mentions "email" must still classify as a username clash.
	err := duplicateUserError(dupKeyMessage(usernameIndexName, "username", "email_fan"))
	require.ErrorIs(t, err, domainuser.ErrUsernameTaken)

	// An unrecognized constraint passes through untouched.
	unknown := errors.New("E11000 duplicate key error index: something_else")
	require.Equal(t, unknown, duplicateUserError(unknown))
}
