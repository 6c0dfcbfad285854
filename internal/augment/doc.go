// Package augment multiplies clips with randomized transforms: tempo change,
// pitch shift, Gaussian noise, background noise mixed at a target SNR, and
// time/frequency masking.
//
// Every augmentation draws from its own generator seeded by the configured
// seed, the clip name and the augmentation index, so reruns reproduce the
// same files regardless of worker scheduling.
package augment
