package local

// Obfuscated entry-point names exported by libstoreservicescore.so. The
// real names were stripped and replaced with these ten-character tokens by
// Apple's build; there is no public mapping beyond call signature, which
// this package documents per entry point below.
const (
	// symLoadLibraryWithPath bootstraps the library, passed the directory
	// containing the native .so file.
	symLoadLibraryWithPath = "kq56gsgHG6"

	// symStartProvisioning begins a provisioning session: (dsID, spim) ->
	// (cpim, session).
	symStartProvisioning = "nf92ngaK92"

	// symEndProvisioning completes a provisioning session: (session, ptm,
	// tk) -> adi_pb (persisted as a side effect, not returned directly).
	symEndProvisioning = "Sph98paBcz"

	// symIsMachineProvisioned is the pure predicate over dsID.
	symIsMachineProvisioned = "p435tmhbla"

	// symOTPRequest returns (mid, otp) for dsID.
	symOTPRequest = "tn46gtiuhw"

	// symDispose releases a buffer previously returned by the library.
	symDispose = "fy34trz2st"

	// symDestroyProvisioning invalidates the current provisioning state.
	symDestroyProvisioning = "uv5t6nhkui"

	// symSetIdentifier installs the 16-byte keychain identifier before the
	// first call into the library.
	symSetIdentifier = "rsegvyrt87"

	// symSetProvisioningPath installs the directory the library should use
	// to persist its own provisioning artifacts.
	symSetProvisioningPath = "aslgmuibau"

	// symSetLocale installs the locale string used in provisioning requests.
	symSetLocale = "jk24uiwqrg"

	// symErrorString maps a non-zero return code to a human-readable
	// message; used only for diagnostics.
	symErrorString = "qi864985u0"
)

// requiredSymbols lists every obfuscated symbol that must resolve for the
// library to be considered valid; a missing symbol is InvalidLibraryFormat.
var requiredSymbols = []string{
	symLoadLibraryWithPath,
	symStartProvisioning,
	symEndProvisioning,
	symIsMachineProvisioned,
	symOTPRequest,
	symDispose,
	symDestroyProvisioning,
	symSetIdentifier,
	symSetProvisioningPath,
	symSetLocale,
	symErrorString,
}
