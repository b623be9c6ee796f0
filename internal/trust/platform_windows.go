// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build windows

package trust

import (
	"context"
	stderrors "errors"
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// NewPlatformVerifier returns the Authenticode verifier. Publishers are
// not consulted on Windows; the system trust store decides.
func NewPlatformVerifier(_ []Publisher) Verifier {
	return WinTrustVerifier{}
}

// HRESULTs returned by WinVerifyTrust.
const (
	trustENoSignature       = syscall.Errno(0x800B0100)
	trustESubjectNotTrusted = syscall.Errno(0x800B0004)
	trustEExplicitDistrust  = syscall.Errno(0x800B0111)
	cryptESecuritySettings  = syscall.Errno(0x80092026)
)

const (
	encodingDefault = windows.X509_ASN_ENCODING | windows.PKCS_7_ASN_ENCODING

	certQueryObjectFile             = 1
	certQueryContentFlagSignedEmbed = 1 << 10
	certQueryFormatFlagBinary       = 1 << 1
	cmsgSignerInfoParam             = 6
	certFindSubjectCert             = 11 << 16
	certNameSimpleDisplayType       = 4
)

var (
	modCrypt32           = windows.NewLazySystemDLL("crypt32.dll")
	procCryptMsgGetParam = modCrypt32.NewProc("CryptMsgGetParam")
	procCryptMsgClose    = modCrypt32.NewProc("CryptMsgClose")
)

type cryptBlob struct {
	Size uint32
	Data *byte
}

type cryptAlgorithmIdentifier struct {
	ObjID      *byte
	Parameters cryptBlob
}

type cryptBitBlob struct {
	Size       uint32
	Data       *byte
	UnusedBits uint32
}

type cmsgSignerInfo struct {
	Version                 uint32
	Issuer                  cryptBlob
	SerialNumber            cryptBlob
	HashAlgorithm           cryptAlgorithmIdentifier
	HashEncryptionAlgorithm cryptAlgorithmIdentifier
	EncryptedHash           cryptBlob
	AuthAttrs               cryptBlob
	UnauthAttrs             cryptBlob
}

type certInfo struct {
	Version            uint32
	SerialNumber       cryptBlob
	SignatureAlgorithm cryptAlgorithmIdentifier
	Issuer             cryptBlob
	NotBefore          windows.Filetime
	NotAfter           windows.Filetime
	Subject            cryptBlob
	PublicKeyAlgorithm cryptAlgorithmIdentifier
	PublicKey          cryptBitBlob
	IssuerUniqueID     cryptBitBlob
	SubjectUniqueID    cryptBitBlob
	ExtensionCount     uint32
	Extensions         uintptr
}

// WinTrustVerifier checks embedded Authenticode signatures with
// WinVerifyTrust and reads the signer's display name from the PKCS#7 blob.
type WinTrustVerifier struct{}

func (WinTrustVerifier) Verify(_ context.Context, path string) (Signature, error) {
	wpath, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return Signature{}, err
	}

	file := &windows.WinTrustFileInfo{
		Size:     uint32(unsafe.Sizeof(windows.WinTrustFileInfo{})),
		FilePath: wpath,
	}
	data := &windows.WinTrustData{
		Size:                            uint32(unsafe.Sizeof(windows.WinTrustData{})),
		UIChoice:                        windows.WTD_UI_NONE,
		RevocationChecks:                windows.WTD_REVOKE_NONE,
		UnionChoice:                     windows.WTD_CHOICE_FILE,
		StateAction:                     windows.WTD_STATEACTION_VERIFY,
		FileOrCatalogOrBlobOrSgnrOrCert: unsafe.Pointer(file),
		ProvFlags:                       windows.WTD_SAFER_FLAG,
	}

	verr := windows.WinVerifyTrustEx(windows.InvalidHWND, &windows.WINTRUST_ACTION_GENERIC_VERIFY_V2, data)

	data.StateAction = windows.WTD_STATEACTION_CLOSE
	_ = windows.WinVerifyTrustEx(windows.InvalidHWND, &windows.WINTRUST_ACTION_GENERIC_VERIFY_V2, data)

	if verr != nil {
		var errno syscall.Errno
		if stderrors.As(verr, &errno) {
			switch errno {
			case trustENoSignature:
				return Signature{}, ErrNoSignature
			case trustEExplicitDistrust, trustESubjectNotTrusted, cryptESecuritySettings:
				return Signature{}, ErrDistrusted
			}
		}
		return Signature{}, fmt.Errorf("WinVerifyTrust: %w", verr)
	}

	// A verified file whose signer cannot be read is still signed.
	signer, _ := signerName(wpath)
	return Signature{Signer: signer}, nil
}

func signerName(wpath *uint16) (string, error) {
	var (
		encoding, contentType, formatType uint32
		store, msg                        windows.Handle
	)
	err := windows.CryptQueryObject(
		certQueryObjectFile,
		unsafe.Pointer(wpath),
		certQueryContentFlagSignedEmbed,
		certQueryFormatFlagBinary,
		0,
		&encoding, &contentType, &formatType,
		&store, &msg, nil,
	)
	if err != nil {
		return "", err
	}
	defer windows.CertCloseStore(store, 0)
	defer procCryptMsgClose.Call(uintptr(msg))

	var size uint32
	r, _, e := procCryptMsgGetParam.Call(uintptr(msg), cmsgSignerInfoParam, 0, 0, uintptr(unsafe.Pointer(&size)))
	if r == 0 {
		return "", e
	}
	buf := make([]byte, size)
	r, _, e = procCryptMsgGetParam.Call(uintptr(msg), cmsgSignerInfoParam, 0, uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)))
	if r == 0 {
		return "", e
	}
	si := (*cmsgSignerInfo)(unsafe.Pointer(&buf[0]))

	info := certInfo{Issuer: si.Issuer, SerialNumber: si.SerialNumber}
	cert, err := windows.CertFindCertificateInStore(store, encodingDefault, 0, certFindSubjectCert, unsafe.Pointer(&info), nil)
	if err != nil {
		return "", err
	}
	defer windows.CertFreeCertificateContext(cert)

	n := windows.CertGetNameString(cert, certNameSimpleDisplayType, 0, nil, nil, 0)
	if n <= 1 {
		return "", stderrors.New("empty signer name")
	}
	name := make([]uint16, n)
	windows.CertGetNameString(cert, certNameSimpleDisplayType, 0, nil, &name[0], n)
	return windows.UTF16ToString(name), nil
}
